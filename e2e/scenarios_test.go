// Package e2e_test drives the hybrid ingestion engine through the seven
// literal end-to-end scenarios against an in-memory warehouse, the same
// table carried across scenarios the way a tap's successive runs would
// see it.
package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive,staticcheck
	. "github.com/onsi/gomega"    //nolint:revive,staticcheck

	"github.com/team-blaze/target-bigquery/engine"
)

func noSleep(time.Duration) {}

// runFixture loads a testdata NDJSON file and drives a fresh [engine.Engine]
// over it against wh, returning the engine (for FailedLines), the emitted
// checkpoint lines, and anything logged at or above Info.
func runFixture(wh *fakeWarehouse, path string, opts ...engine.Option) (*engine.Engine, []map[string]any, string) {
	data, err := os.ReadFile(path)
	Expect(err).NotTo(HaveOccurred())

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	var out bytes.Buffer
	cfg := engine.Config{Project: "proj", Dataset: "tap_sample"}

	allOpts := append([]engine.Option{
		engine.WithLogger(logger),
		engine.WithClock(time.Now, noSleep),
	}, opts...)

	e := engine.New(wh, json.NewEncoder(&out), cfg, allOpts...)

	Expect(e.Run(context.Background(), bytes.NewReader(data))).To(Succeed())

	return e, decodeLines(out.String()), logBuf.String()
}

func decodeLines(s string) []map[string]any {
	var lines []map[string]any

	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if line == "" {
			continue
		}

		var v map[string]any

		Expect(json.Unmarshal([]byte(line), &v)).To(Succeed())

		lines = append(lines, v)
	}

	return lines
}

func bookmarkVersion(checkpoint map[string]any, stream string) string {
	bookmarks, _ := checkpoint["bookmarks"].(map[string]any)
	entry, _ := bookmarks[stream].(map[string]any)

	switch v := entry["version"].(type) {
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// piDigits is a fixed 100-digit cycle used to pad synthesized decimal
// fields to arbitrary precision without pulling in math/rand.
const piDigits = "14159265358979323846264338327950288419716939937510582097494459230781640628620899862803482534211706"

// synthesizeOversizeInput builds n SCHEMA-registered records for stream
// "bulky", each carrying a distinct integer id and a decimal field with
// 800 digits of fractional precision. The decimals exercise the
// json.Number → float64 coercion (precision loss, not overflow); once
// coerced, the batch is far below the 9,000,000-byte oversize threshold,
// so the split under test comes from the per-call row cap.
func synthesizeOversizeInput(n int) string {
	var b strings.Builder

	b.WriteString(`{"type":"SCHEMA","stream":"bulky","schema":{"type":"object","properties":{"id":{"type":"integer"},"decimal":{"type":"number"}}},"key_properties":["id"]}` + "\n")
	b.WriteString(`{"type":"STATE","value":{"bookmarks":{},"currently_syncing":"bulky"}}` + "\n")

	var frac strings.Builder
	for frac.Len() < 800 {
		frac.WriteString(piDigits)
	}

	fracDigits := frac.String()[:800]

	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `{"type":"RECORD","stream":"bulky","record":{"id":%d,"decimal":%d.%s}}`+"\n", i, i, fracDigits)
	}

	b.WriteString(`{"type":"STATE","value":{"bookmarks":{"bulky":{"version":1700000000001}},"currently_syncing":null}}` + "\n")

	return b.String()
}

var _ = Describe("hybrid ingestion engine", Ordered, func() {
	var wh *fakeWarehouse

	BeforeAll(func() {
		wh = newFakeWarehouse()
	})

	Context("first run", func() {
		It("creates the table, lands 7 rows, and checkpoints the terminal state", func() {
			_, lines, _ := runFixture(wh, "../testdata/tap-sample-first-run.json")

			Expect(wh.rowCount("fruitimals")).To(Equal(7))
			Expect(lines).To(HaveLen(1))
			Expect(bookmarkVersion(lines[0], "fruitimals")).To(Equal("1573504566181"))
		})
	})

	Context("incremental append", func() {
		It("appends 5 more rows onto the same table", func() {
			_, lines, _ := runFixture(wh, "../testdata/tap-sample-incremental-rows.json")

			Expect(wh.rowCount("fruitimals")).To(Equal(12))
			Expect(lines).To(HaveLen(1))
			Expect(bookmarkVersion(lines[0], "fruitimals")).To(Equal("1574426993906"))
		})
	})

	Context("additive schema change", func() {
		It("patches the table to the new column set and lands the new row", func() {
			_, lines, _ := runFixture(wh, "../testdata/tap-sample-new-schema.json")

			Expect(wh.rowCount("fruitimals")).To(Equal(13))
			Expect(wh.columnNames("fruitimals")).To(ConsistOf(
				"asset", "name", "deleted", "created_at", "updated_at", "id",
			))
			Expect(lines).To(HaveLen(1))
			Expect(bookmarkVersion(lines[0], "fruitimals")).To(Equal("1583426993906"))
		})
	})

	Context("empty delta", func() {
		It("leaves the row count unchanged", func() {
			_, lines, _ := runFixture(wh, "../testdata/tap-sample-nothing-new.json")

			Expect(wh.rowCount("fruitimals")).To(Equal(13))
			Expect(lines).To(HaveLen(1))
			Expect(bookmarkVersion(lines[0], "fruitimals")).To(Equal("1593427048885"))
		})
	})

	Context("mid-stream state", func() {
		It("emits two checkpoints in order and lands both rows", func() {
			_, lines, _ := runFixture(wh, "../testdata/tap-sample-incremental-rows-with-state-midstream.json")

			Expect(wh.rowCount("fruitimals")).To(Equal(15))
			Expect(lines).To(HaveLen(2))
			Expect(bookmarkVersion(lines[0], "fruitimals")).To(Equal("1693427999999"))
			Expect(bookmarkVersion(lines[1], "fruitimals")).To(Equal("1693429999888"))
		})
	})

	Context("oversize slicing", func() {
		It("splits a batch over the 10,000-row cap into at least two warehouse calls and lands every row", func() {
			swh := newFakeWarehouse()
			input := synthesizeOversizeInput(11_000)

			var logBuf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logBuf, nil))

			var out bytes.Buffer
			cfg := engine.Config{Project: "proj", Dataset: "tap_sample", MaxBatchRows: 10_000}
			e := engine.New(swh, json.NewEncoder(&out), cfg,
				engine.WithLogger(logger),
				engine.WithClock(time.Now, noSleep),
			)

			Expect(e.Run(context.Background(), strings.NewReader(input))).To(Succeed())

			Expect(swh.rowCount("bulky")).To(Equal(11_000))
			Expect(swh.insertCallCount("bulky")).To(BeNumerically(">=", 2))

			for _, row := range swh.rows["bulky"] {
				_, isFloat := row["decimal"].(float64)
				Expect(isFloat).To(BeTrue(), "decimal fields must be coerced to float64 before upload")
			}
		})
	})

	Context("incompatible type change", func() {
		It("suppresses the checkpoint and logs the conversion failure without losing rows", func() {
			before := wh.rowCount("fruitimals")

			wh.mu.Lock()
			wh.updateErr["fruitimals"] = fmt.Errorf("Provided Schema does not match Table proj:tap_sample.fruitimals")
			wh.rejectRows["fruitimals"] = "Cannot convert value to integer"
			wh.mu.Unlock()

			e, lines, logs := runFixture(wh, "../testdata/tap-sample-incompatible-type-change.json")

			Expect(lines).To(BeEmpty())
			Expect(logs).To(ContainSubstring("Cannot convert value to integer"))
			Expect(wh.rowCount("fruitimals")).To(Equal(before))
			Expect(e.FailedLines()).NotTo(BeEmpty())
		})
	})
})
