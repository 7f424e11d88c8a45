// Package config loads wdpool settings with viper.
//
// Settings come from defaults, then $XDG_CONFIG_HOME/wdpool/config.yaml (or
// a file given with --config), then WDPOOL_* environment variables:
//
//	bridge: firefox
//	headless: true
//	pool:
//	  maximum: 4
//	  reset_policy: blank
//	capabilities:
//	  - path: alwaysMatch.acceptInsecureCerts
//	    value: true
//
// [Watch] reloads the file on change so long-running commands can resize
// the pool without restarting.
package config
