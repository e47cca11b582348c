// Command gen-stream writes a synthetic CSV sample recording with a
// known environment, for pipeline testing and replay.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"

	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/ingest"
	"github.com/handwave-io/fieldtrack/internal/synth"
)

func main() {
	output := flag.String("o", "stream.csv", "output path")
	samples := flag.Int("n", 1000, "number of samples")
	seed := flag.Int64("seed", 1, "rng seed")
	withMagnet := flag.Bool("magnet", false, "inject a simulated index-finger magnet")
	flag.Parse()

	cfg := synth.DefaultConfig()
	cfg.Seed = *seed
	if *withMagnet {
		pose := imu.HandPose{}
		pose[imu.Index] = imu.Vec3{X: 0.03, Y: 0.02, Z: 0.05}
		cfg.MagnetPose = &pose
		cfg.Moments[imu.Index] = imu.Vec3{Z: 1.0}
	}
	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	w.WriteString("# ax,ay,az,gx,gy,gz,mx,my,mz,unix_nanos\n")
	gen := synth.New(cfg)
	for i := 0; i < *samples; i++ {
		w.WriteString(ingest.FormatSampleLine(gen.Next()))
		w.WriteByte('\n')
	}
	log.Printf("wrote %d samples to %s", *samples, *output)
}
