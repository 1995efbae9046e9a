// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command rao optimises remedial actions on a grid case.
//
// Usage:
//
//	rao run --case case.yaml [--config search.yaml] [--out report.json] [--store DIR]
//	rao serve [--addr :12230] [--config rao.yaml] [--store DIR]
//	rao version
//
// Example requests against `rao serve`:
//
//	# Health check
//	curl http://localhost:12230/v1/rao/health
//
//	# Run a case (the body is {"case": <case document>, "config": <optional search config>})
//	curl -X POST http://localhost:12230/v1/rao/runs \
//	  -H "Content-Type: application/json" \
//	  -d @request.json
//
//	# List stored runs
//	curl http://localhost:12230/v1/rao/runs?limit=10
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
