// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build jtagtap_cable_usbblaster_debug
// +build jtagtap_cable_usbblaster_debug

package usbblaster

import "log"

// logf is enabled when the build tag jtagtap_cable_usbblaster_debug is
// specified.
func logf(fmt string, v ...interface{}) {
	log.Printf(fmt, v...)
}
