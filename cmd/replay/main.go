// Command replay summarizes a recorded run from its compressed frame segments.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/talgya/swift-dreams/internal/replay"
)

func main() {
	dir := flag.String("dir", "data/replay", "replay directory")
	run := flag.String("run", "", "run ID to summarize (empty for every run in dir)")
	flag.Parse()

	sum, err := replay.Summarize(*dir, *run)
	if err != nil {
		slog.Error("summarize failed", "dir", *dir, "run", *run, "error", err)
		os.Exit(1)
	}
	if sum.Frames == 0 {
		fmt.Printf("No frames found in %s\n", *dir)
		return
	}

	fmt.Printf("Segments: %d\n", sum.Segments)
	fmt.Printf("Frames:   %s (ticks %s to %s)\n",
		humanize.Comma(int64(sum.Frames)), humanize.Comma(int64(sum.FirstTick)), humanize.Comma(int64(sum.LastTick)))
	fmt.Printf("Rounds:   %d, final score %d\n", sum.Rounds, sum.FinalScore)
	printCounts("Behaviors entered", sum.Transitions)
	printCounts("Effects shown", sum.Effects)
	printCounts("Events", sum.Events)
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Printf("\n%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-12s %s\n", k, humanize.Comma(int64(counts[k])))
	}
}
