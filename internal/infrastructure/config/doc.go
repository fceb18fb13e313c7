// Package config loads, defaults, and validates the tetherd configuration.
//
// Configuration comes from one YAML file with environment variable
// overrides on top (STUDIOTETHER_* names, useful for secrets and container
// deployments). Load applies defaults first, then the file, then the
// environment, then validates the merged result. Default skips the file
// and serves the defaults-plus-environment path for setups with no config
// file at all.
//
// Everything is read once at startup. Components receive their config
// sections by value and never see later edits to the file; runtime-tunable
// settings (preview rotation, capture pacing) travel through the monitor
// API instead.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Preview.DownloadDir)
package config
