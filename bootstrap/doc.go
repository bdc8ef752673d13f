// Package bootstrap wires configuration into the stores, audit sinks, loader and
// playbook runner the triage engine runs with.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx, bootstrap.Options{ConfigPath: "config.yaml"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Shutdown()
//
//	app.Start(ctx)
//	result, err := app.TriageFiles(ctx, "alert.json")
package bootstrap
