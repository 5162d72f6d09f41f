// defaults.go: default configuration values applied before reading config.yaml.
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for each configuration parameter.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main defaults
	viper.SetDefault("main.name", "isotrace")
	viper.SetDefault("main.timeas24h", true)
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/isotrace.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10*1024*1024)
	viper.SetDefault("main.log.rotationday", "Sunday")

	// Output defaults: embedded SQLite unless MySQL is configured
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "isotrace.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "isotrace")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "isotrace")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	// Web server defaults
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "logs/webserver.log")
	viper.SetDefault("webserver.log.rotation", RotationDaily)
	viper.SetDefault("webserver.log.maxsize", 10*1024*1024)

	// Engine defaults
	viper.SetDefault("engine.cachettl", 60)
	viper.SetDefault("engine.defaultpagesize", 20)
	viper.SetDefault("engine.maxpagesize", 200)
	viper.SetDefault("engine.timezone", "UTC")
}
