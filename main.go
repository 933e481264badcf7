// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/jonluca/palate-sub000/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
