// Package config provides configuration parsing for loom projects.
//
// The configuration is stored in loom.json at the project root.
// This package handles loading, saving, and validating configuration.
//
// # Configuration File Structure
//
//	{
//	  "name": "shop",
//	  "client": "src/entry-client.ts",
//	  "ssr": { "entry": "src/entry-server.ts" },
//	  "apis": {
//	    "api": { "entry": "src/api/main.ts", "route": "/api" }
//	  },
//	  "template": "index.html",
//	  "dev": {
//	    "port": 3000,
//	    "host": "localhost"
//	  },
//	  "build": {
//	    "output": "dist",
//	    "minify": true
//	  },
//	  "bundler": {
//	    "command": "esbuild",
//	    "runtime": "node"
//	  }
//	}
//
// Each target is either a bare entry path or an object with entry, optional
// route (API targets only), and optional environment overrides. The "apis"
// object keeps its declaration order; development route matching walks the
// prefixes in that order.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Port:", cfg.Dev.Port)
package config
