// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command ingest reads framed sensor telemetry off a serial link and fans
// it out to a raw byte tap, a rolling in-memory buffer, and a per-sensor
// CSV dumper.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/maruel/interrupt"
	"github.com/sirupsen/logrus"

	"github.com/fieldform/sensorbridge/telemetry"
)

func mainImpl() error {
	port := flag.String("port", "/dev/ttyUSB0", "serial port to read from")
	baud := flag.Uint("baud", 115200, "baud rate")
	csvDir := flag.String("csv-dir", ".", "directory to write per-sensor CSV files into")
	rawTap := flag.String("raw-tap", "", "optional path to tee raw bytes to (.gz suffix gzips)")
	bufCap := flag.Int("buffer", 100, "number of frames retained per sensor and globally")
	flag.Parse()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	interrupt.HandleCtrlC()

	src, err := telemetry.OpenSource(*port, *baud)
	if err != nil {
		return err
	}
	defer src.Close()

	var tap *telemetry.RawTap
	if *rawTap != "" {
		tap, err = telemetry.OpenRawTap(*rawTap)
		if err != nil {
			return err
		}
		defer tap.Close()
	}

	buf := telemetry.NewBuffer(*bufCap)
	dumper := telemetry.NewDumper(*csvDir)
	defer dumper.Close()

	// C1: serial read and the outbound command writer run on their own
	// goroutines against the shared port, same as telemetry.Source.Run and
	// RunCommands document.
	rawIn := make(chan []byte)
	srcDone := make(chan error, 1)
	go src.Run(rawIn, srcDone)
	rawChan := unboundedBytes(rawIn)

	cmds := make(chan string)
	cmdsDone := make(chan error, 1)
	go src.RunCommands(cmds, cmdsDone)
	go func() {
		defer close(cmds)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case cmds <- scanner.Text() + "\n":
			case <-interrupt.Channel:
				return
			}
		}
	}()

	// C2: decode runs independently of both C4 and C5 so a slow CSV flush
	// or a stalled buffer query never backs up ingest — spec §5's "at least
	// four parallel tasks" requirement. Decoded frames fan out over two
	// unbounded queues, one per consumer.
	acc := telemetry.NewAccumulator()
	framesOut := make(chan telemetry.Frame)
	decodeDone := make(chan error, 1)
	go func() {
		defer close(framesOut)
		for {
			select {
			case <-interrupt.Channel:
				decodeDone <- nil
				return
			case p, ok := <-rawChan:
				if !ok {
					decodeDone <- nil
					return
				}
				if tap != nil {
					if _, err := tap.Write(p); err != nil {
						logrus.WithError(err).Error("raw tap write failed")
						decodeDone <- err
						return
					}
				}
				acc.Write(p)
				for {
					frame, status := acc.Next()
					if status == telemetry.StatusTruncated {
						break
					}
					if status != telemetry.StatusOK {
						continue
					}
					select {
					case framesOut <- frame:
					case <-interrupt.Channel:
						decodeDone <- nil
						return
					}
				}
			}
		}
	}()

	bufFrames, dumpFrames := teeFrames(framesOut)

	// C4: the in-memory sensor buffer, fed off its own unbounded queue.
	go func() {
		for frame := range bufFrames {
			buf.Ingest(frame)
		}
	}()

	// C5: the CSV dumper, fed off its own unbounded queue so C4 queries
	// never wait on disk I/O.
	dumpDone := make(chan error, 1)
	go func() {
		for frame := range dumpFrames {
			if err := dumper.Ingest(frame); err != nil {
				logrus.WithError(err).Error("CSV dump failed")
				dumpDone <- err
				return
			}
		}
		dumpDone <- nil
	}()

	for !interrupt.IsSet() {
		select {
		case err := <-srcDone:
			if err != nil {
				return err
			}
			return nil
		case err := <-decodeDone:
			if err != nil {
				return err
			}
			return nil
		case err := <-cmdsDone:
			if err != nil {
				return err
			}
			return nil
		case err := <-dumpDone:
			if err != nil {
				return err
			}
			return nil
		case <-time.After(time.Second):
			fmt.Printf("%d frames %d corrupt %d encoding %d sensors\r",
				acc.Frames, acc.Corrupt, acc.Encoding, buf.NumSensors())
		}
	}
	fmt.Print("\n")
	return nil
}

// unboundedBytes relays b onto a channel backed by a growable slice instead
// of a fixed buffer, so a momentarily slow decoder never blocks the serial
// read loop: spec §5 calls for unbounded single-producer/single-consumer
// channels between stages, with a stuck consumer showing up as memory
// growth rather than dropped bytes.
func unboundedBytes(in <-chan []byte) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		var queue [][]byte
		for {
			if len(queue) == 0 {
				p, ok := <-in
				if !ok {
					return
				}
				queue = append(queue, p)
				continue
			}
			select {
			case p, ok := <-in:
				if !ok {
					for _, q := range queue {
						out <- q
					}
					return
				}
				queue = append(queue, p)
			case out <- queue[0]:
				queue = queue[1:]
			}
		}
	}()
	return out
}

// teeFrames fans in out to two independent unbounded queues, one per
// downstream consumer (C4, C5), so neither consumer's pace affects the
// other's.
func teeFrames(in <-chan telemetry.Frame) (a, b <-chan telemetry.Frame) {
	aIn := make(chan telemetry.Frame)
	bIn := make(chan telemetry.Frame)
	go func() {
		defer close(aIn)
		defer close(bIn)
		for f := range in {
			aIn <- f
			bIn <- f
		}
	}()
	return unboundedFrames(aIn), unboundedFrames(bIn)
}

func unboundedFrames(in <-chan telemetry.Frame) <-chan telemetry.Frame {
	out := make(chan telemetry.Frame)
	go func() {
		defer close(out)
		var queue []telemetry.Frame
		for {
			if len(queue) == 0 {
				f, ok := <-in
				if !ok {
					return
				}
				queue = append(queue, f)
				continue
			}
			select {
			case f, ok := <-in:
				if !ok {
					for _, q := range queue {
						out <- q
					}
					return
				}
				queue = append(queue, f)
			case out <- queue[0]:
				queue = queue[1:]
			}
		}
	}()
	return out
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %s.\n", err)
		os.Exit(1)
	}
}
