// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// +build !jtagtap_cable_gpiocable_debug

package gpiocable

// logf is disabled when the build tag jtagtap_cable_gpiocable_debug is not
// specified.
func logf(fmt string, v ...interface{}) {
}
