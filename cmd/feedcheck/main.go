// feedcheck inspects one predictor feed file offline: it applies the same
// validation rules the service's normalizer uses and reports what would be
// accepted and what would be dropped. Exit status is nonzero when the feed
// would not produce a usable batch.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"propflow/models"
	"propflow/processor"
)

func main() {
	filePath := flag.String("file", "", "Path to a predictions feed file")
	sport := flag.String("sport", "", "Sport the feed is expected to carry (defaults to the envelope's own tag)")
	verbose := flag.Bool("verbose", false, "Print every rejected record with its reason")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: feedcheck -file <feed.json> [-sport NBA] [-verbose]")
		os.Exit(2)
	}

	payload, err := os.ReadFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedcheck: cannot read %s: %v\n", *filePath, err)
		os.Exit(1)
	}

	var envelope models.FeedEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		fmt.Fprintf(os.Stderr, "feedcheck: %s is not a feed envelope: %v\n", *filePath, err)
		os.Exit(1)
	}

	feedSport := envelope.Sport
	if feedSport == "" {
		feedSport = *sport
	}
	if !models.IsKnownSport(feedSport) {
		fmt.Fprintf(os.Stderr, "feedcheck: unknown sport %q (use -sport when the envelope carries no tag)\n", feedSport)
		os.Exit(1)
	}
	if *sport != "" && feedSport != *sport {
		fmt.Fprintf(os.Stderr, "feedcheck: envelope sport %q does not match -sport %q\n", feedSport, *sport)
		os.Exit(1)
	}

	categories := make(map[models.ConfidenceCategory]int)
	accepted := 0
	rejected := 0

	for i, feedRec := range envelope.Predictions {
		rec, err := processor.NormalizeRecord(feedSport, feedRec)
		if err != nil {
			rejected++
			if *verbose {
				fmt.Printf("  reject #%d player=%q stat=%q: %v\n", i, feedRec.Player, feedRec.Stat, err)
			}
			continue
		}
		accepted++
		categories[rec.Confidence]++
	}

	fmt.Printf("feed:          %s\n", *filePath)
	fmt.Printf("sport:         %s\n", feedSport)
	if envelope.ModelVersion != "" {
		fmt.Printf("model_version: %s\n", envelope.ModelVersion)
	}
	if !envelope.GeneratedAt.IsZero() {
		fmt.Printf("generated_at:  %s\n", envelope.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("records:       %d accepted, %d rejected of %d\n", accepted, rejected, len(envelope.Predictions))

	for _, cat := range models.ConfidenceCategories {
		if count := categories[cat]; count > 0 {
			fmt.Printf("  %-10s %d\n", cat, count)
		}
	}

	if len(envelope.Predictions) > 0 && accepted == 0 {
		fmt.Fprintln(os.Stderr, "feedcheck: every record failed validation, feed is unusable")
		os.Exit(1)
	}
}
