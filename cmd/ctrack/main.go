// Copyright (c) 2024–2026 The ctrack developers. All rights reserved.
// Project site: https://github.com/marslab/vna
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Command ctrack controls the circular track measurement bench: the rotary
// positioner, the network analyzer, the tunable laser and the photodetector
// oscilloscope.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := NewCommand().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
