// Package config loads and validates the bench controller's
// configuration.
//
// Everything comes from one YAML file resolved in three layers:
// built-in defaults first, then the file, then BENCHRIG_* environment
// variables for the handful of values that change per deployment.
// Validation runs last and reports every problem at once, so a bad
// file is fixed in a single edit.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Rig.Name)
//
// The loaded Config is read-only after startup; nothing in the daemon
// mutates it. Broker credentials belong in BENCHRIG_MQTT_USERNAME and
// BENCHRIG_MQTT_PASSWORD rather than the file, and the file itself
// should sit at mode 0600 on shared benches.
package config
