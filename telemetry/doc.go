// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package telemetry reads framed sensor readings off a serial link, decodes
// them into typed frames, and fans them out to a raw byte tap, a rolling
// per-sensor buffer, and a per-sensor-variant CSV dumper.
package telemetry
