// defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// DefaultMaxErrorsReported caps how many row-level validation errors an
// upload response carries when the setting is unset.
const DefaultMaxErrorsReported = 10

// setDefaultConfig sets the default values for the configuration
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "PTMscope")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/ptmscope.log")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "ptmscope.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "ptmscope")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "ptmscope")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("upload.maxerrorsreported", 10)
	viper.SetDefault("upload.defaultorganism", "Homo sapiens")

	viper.SetDefault("consolidation.windowradius", 7)

	viper.SetDefault("uniprot.enabled", true)
	viper.SetDefault("uniprot.baseurl", "https://rest.uniprot.org/uniprotkb")
	viper.SetDefault("uniprot.proteinsapiurl", "https://www.ebi.ac.uk/proteins/api/features")
	viper.SetDefault("uniprot.timeout", 30)
	viper.SetDefault("uniprot.cachettl", 24)
	viper.SetDefault("uniprot.ratelimitms", 200)
}
