package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

// consolePrefix is the topic prefix console plant commands are parsed under
const consolePrefix = "console"

var (
	watchWindows     = []int{1, 5, 15}
	watchPercentiles = []int{1, 50, 66, 99}
)

// WatchSpec selects a topic for the console table. Minutes and Percentile pick a windowed
// percentile of a float topic, both zero is the current value.
type WatchSpec struct {
	Topic      string
	Minutes    int
	Percentile int
}

func (w WatchSpec) current() bool {
	return w.Minutes == 0 && w.Percentile == 0
}

// String is the console form of the watch, as parseWatchSpec reads it
func (w WatchSpec) String() string {
	if w.current() {
		return w.Topic
	}
	return fmt.Sprintf("%s %dm p%d", w.Topic, w.Minutes, w.Percentile)
}

// GetValue formats the watched value from DisplayData, "-" when the topic is unknown
func (w WatchSpec) GetValue(data DisplayData) string {
	switch td := data.TopicData[w.Topic].(type) {
	case *StringTopicData:
		return td.Current
	case *BooleanTopicData:
		if td.Current {
			return "on"
		}
		return "off"
	case *FloatTopicData:
		if w.current() {
			return formatDebugValue(td.Current)
		}
		tw := map[int]TimeWindows{1: td.P1, 50: td.P50, 66: td.P66, 99: td.P99}[w.Percentile]
		return formatDebugValue(map[int]float64{1: tw._1, 5: tw._5, 15: tw._15}[w.Minutes])
	}
	return "-"
}

func formatDebugValue(v float64) string {
	if v >= 1000 || v <= -1000 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// parseWatchSpec reads "<topic> [1m|5m|15m] [p1|p50|p66|p99]". A window alone is the
// median, a percentile alone covers 15 minutes.
func parseWatchSpec(args []string) (WatchSpec, error) {
	if len(args) == 0 {
		return WatchSpec{}, errors.New("missing topic")
	}

	spec := WatchSpec{Topic: args[0]}
	for _, arg := range args[1:] {
		if p, ok := strings.CutPrefix(arg, "p"); ok {
			n, err := strconv.Atoi(p)
			if err != nil || !slices.Contains(watchPercentiles, n) {
				return WatchSpec{}, fmt.Errorf("percentile %q must be p1, p50, p66 or p99", arg)
			}
			spec.Percentile = n
			continue
		}
		if m, ok := strings.CutSuffix(arg, "m"); ok {
			n, err := strconv.Atoi(m)
			if err != nil || !slices.Contains(watchWindows, n) {
				return WatchSpec{}, fmt.Errorf("window %q must be 1m, 5m or 15m", arg)
			}
			spec.Minutes = n
			continue
		}
		return WatchSpec{}, fmt.Errorf("unknown watch option %q", arg)
	}

	if spec.Minutes > 0 && spec.Percentile == 0 {
		spec.Percentile = 50
	}
	if spec.Percentile > 0 && spec.Minutes == 0 {
		spec.Minutes = 15
	}
	return spec, nil
}

// DebugState holds the console's watches and the plant it drives
type DebugState struct {
	watches []WatchSpec
	widths  []int
	lastRow string
	latest  *DisplayData
	out     io.Writer

	plant     PlantController
	stateFile string
}

func NewDebugState(plant PlantController, stateFile string) *DebugState {
	return &DebugState{plant: plant, stateFile: stateFile, out: os.Stdout}
}

func (s *DebugState) print(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

// AddWatch adds a watch, keeping the table sorted
func (s *DebugState) AddWatch(spec WatchSpec) error {
	if slices.Contains(s.watches, spec) {
		return fmt.Errorf("already watching %s", spec)
	}
	s.watches = append(s.watches, spec)
	slices.SortFunc(s.watches, func(a, b WatchSpec) int {
		return strings.Compare(a.String(), b.String())
	})
	s.widths = nil
	log.Printf("Watching: %s", spec)
	return nil
}

// RemoveWatches removes spec, or every watch on its topic when spec is a current value.
// It returns how many were removed.
func (s *DebugState) RemoveWatches(spec WatchSpec) int {
	before := len(s.watches)
	s.watches = slices.DeleteFunc(s.watches, func(w WatchSpec) bool {
		if spec.current() {
			return w.Topic == spec.Topic
		}
		return w == spec
	})
	removed := before - len(s.watches)
	if removed > 0 {
		s.widths = nil
		log.Printf("Unwatched %d on %s", removed, spec.Topic)
	}
	return removed
}

// UpdateData stores data for the list command and prints a table row when a watched value
// changed. The header is reprinted after the watches change.
func (s *DebugState) UpdateData(data DisplayData) {
	s.latest = &data
	if len(s.watches) == 0 {
		return
	}

	if s.widths == nil {
		s.widths = make([]int, len(s.watches))
		names := make([]string, len(s.watches))
		for i, w := range s.watches {
			names[i] = w.String()
			s.widths[i] = len(names[i])
		}
		s.print("%8s | %s", "t", strings.Join(names, " | "))
		s.lastRow = ""
	}

	cells := make([]string, len(s.watches))
	for i, w := range s.watches {
		v := w.GetValue(data)
		s.widths[i] = max(s.widths[i], len(v))
		cells[i] = fmt.Sprintf("%*s", s.widths[i], v)
	}
	row := strings.Join(cells, " | ")
	if row == s.lastRow {
		return
	}
	s.lastRow = row
	s.print("%8.2f | %s", data.Time, row)
}

func topicKind(v any) string {
	switch v.(type) {
	case *FloatTopicData:
		return "float"
	case *StringTopicData:
		return "string"
	case *BooleanTopicData:
		return "bool"
	}
	return "?"
}

// runPlant applies fn to the plant, giving up after a few seconds
func (s *DebugState) runPlant(ctx context.Context, fn func(p *Plant) error) error {
	if s.plant == nil {
		return errors.New("no plant attached")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.plant.Do(ctx, fn)
}

func (s *DebugState) fileArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return s.stateFile
}

// consoleCmd is one console command. Plant commands set topic, which maps the arguments
// onto the command topic grammar shared with MQTT. The rest set run.
type consoleCmd struct {
	name    string
	usage   string
	help    string
	minArgs int
	maxArgs int
	topic   func(args []string) (topic, value string)
	run     func(ctx context.Context, s *DebugState, args []string) error
}

// axisTopic maps "<axis> <value...>" onto the axis command topic
func axisTopic(command string) func(args []string) (string, string) {
	return func(args []string) (string, string) {
		return consolePrefix + "/" + args[0] + "/set/" + command, strings.Join(args[1:], " ")
	}
}

var consoleCmds []consoleCmd

func init() {
	consoleCmds = []consoleCmd{
		{name: "drive", usage: "<axis> <pos> [seconds]", help: "Drive to a position, optionally timed",
			minArgs: 2, maxArgs: 3, topic: axisTopic("drive_to")},
		{name: "jog", usage: "<axis> forward|backward|stop", help: "Jog an axis",
			minArgs: 2, maxArgs: 2, topic: axisTopic("jog")},
		{name: "stop", usage: "<axis>", help: "Stop an axis immediately",
			minArgs: 1, maxArgs: 1, topic: axisTopic("stop")},
		{name: "reset", usage: "<axis> on|off", help: "Hold an axis at its offset",
			minArgs: 2, maxArgs: 2, topic: axisTopic("reset")},
		{name: "override", usage: "<axis> <pos>|off", help: "Override the reported position",
			minArgs: 2, maxArgs: 2, topic: axisTopic("position_override")},
		{name: "input", usage: "<axis> <name> <value>", help: "Set a behavior input",
			minArgs: 3, maxArgs: 3, topic: func(args []string) (string, string) {
				return consolePrefix + "/" + args[0] + "/set/input/" + args[1], args[2]
			}},
		{name: "signal", usage: "<name> on|off", help: "Set a signal",
			minArgs: 2, maxArgs: 2, topic: func(args []string) (string, string) {
				return consolePrefix + "/signal/" + args[0] + "/set", args[1]
			}},
		{name: "speed", usage: "<factor>", help: "Set the simulation speed",
			minArgs: 1, maxArgs: 1, topic: func(args []string) (string, string) {
				return consolePrefix + "/plant/set/speed_override", args[0]
			}},
		{name: "watch", usage: "<topic> [1m|5m|15m] [p1|p50|p66|p99]", help: "Add a column to the table",
			minArgs: 1, maxArgs: 3, run: func(_ context.Context, s *DebugState, args []string) error {
				spec, err := parseWatchSpec(args)
				if err != nil {
					return err
				}
				return s.AddWatch(spec)
			}},
		{name: "unwatch", usage: "<topic> [window] [percentile] | all", help: "Remove columns, all windows without options",
			minArgs: 1, maxArgs: 3, run: func(_ context.Context, s *DebugState, args []string) error {
				if len(args) == 1 && args[0] == "all" {
					s.watches, s.widths = nil, nil
					return nil
				}
				spec, err := parseWatchSpec(args)
				if err != nil {
					return err
				}
				if s.RemoveWatches(spec) == 0 {
					return fmt.Errorf("not watching %s", spec)
				}
				return nil
			}},
		{name: "list", help: "List topics", run: func(_ context.Context, s *DebugState, _ []string) error {
			if s.latest == nil {
				return errors.New("no data received yet")
			}
			topics := make([]string, 0, len(s.latest.TopicData))
			for topic := range s.latest.TopicData {
				topics = append(topics, topic)
			}
			slices.Sort(topics)
			s.print("Topics at t=%.2fs (%d):", s.latest.Time, len(topics))
			for _, topic := range topics {
				s.print("  %-6s %s", topicKind(s.latest.TopicData[topic]), topic)
			}
			return nil
		}},
		{name: "inputs", help: "List behavior inputs", run: func(ctx context.Context, s *DebugState, _ []string) error {
			var inputs []string
			if err := s.runPlant(ctx, func(p *Plant) error { inputs = p.Inputs(); return nil }); err != nil {
				return err
			}
			s.print("Inputs (%d):", len(inputs))
			for _, in := range inputs {
				s.print("  %s", in)
			}
			return nil
		}},
		{name: "save", usage: "[file]", help: "Save the plant state",
			maxArgs: 1, run: func(ctx context.Context, s *DebugState, args []string) error {
				path := s.fileArg(args)
				if err := s.runPlant(ctx, func(p *Plant) error { return saveStateFile(p, path) }); err != nil {
					return err
				}
				log.Printf("Saved state to %s", path)
				return nil
			}},
		{name: "load", usage: "[file]", help: "Load the plant state",
			maxArgs: 1, run: func(ctx context.Context, s *DebugState, args []string) error {
				path := s.fileArg(args)
				if err := s.runPlant(ctx, func(p *Plant) error { return loadStateFile(p, path) }); err != nil {
					return err
				}
				log.Printf("Loaded state from %s", path)
				return nil
			}},
		{name: "help", help: "Show this help", run: func(_ context.Context, s *DebugState, _ []string) error {
			s.print("Commands:")
			for _, c := range consoleCmds {
				s.print("  %-50s %s", strings.TrimSpace(c.name+" "+c.usage), c.help)
			}
			return nil
		}},
	}
}

// handleDebugCommand runs one console line. Plant commands go through parseCommand so the
// console and MQTT accept the same values.
func handleDebugCommand(ctx context.Context, line string, s *DebugState) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	i := slices.IndexFunc(consoleCmds, func(c consoleCmd) bool { return c.name == parts[0] })
	if i < 0 {
		return fmt.Errorf("unknown command %q (try 'help')", parts[0])
	}
	c, args := consoleCmds[i], parts[1:]
	if len(args) < c.minArgs || len(args) > c.maxArgs {
		return fmt.Errorf("usage: %s %s", c.name, c.usage)
	}

	if c.run != nil {
		return c.run(ctx, s, args)
	}
	topic, value := c.topic(args)
	apply, err := parseCommand(consolePrefix, topic, value)
	if err != nil {
		return err
	}
	return s.runPlant(ctx, apply)
}

func consoleHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "axisctl")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return ""
	}
	return filepath.Join(dir, "console_history")
}

// debugWorker is the interactive console: it tables watched DisplayData topics and drives
// the plant. Ctrl+C cancels the daemon.
func debugWorker(
	ctx context.Context,
	cancel context.CancelFunc,
	plant PlantController,
	stateFile string,
	dataChan <-chan DisplayData,
) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: consoleHistoryPath(),
	})
	if err != nil {
		log.Printf("Debug worker: readline init failed: %v", err)
		return
	}
	defer func() { _ = rl.Close() }()

	// Output written through readline keeps the prompt intact
	log.SetOutput(rl.Stderr())
	defer log.SetOutput(os.Stderr)

	state := NewDebugState(plant, stateFile)
	state.out = rl.Stdout()
	log.Println("Console started (type 'help' for commands)")

	lines := make(chan string, 10)
	go func() {
		defer close(lines)
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				cancel()
				return
			}
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := handleDebugCommand(ctx, line, state); err != nil {
				log.Printf("Error: %v", err)
			}
		case data := <-dataChan:
			state.UpdateData(data)
		case <-ctx.Done():
			log.Println("Console stopped")
			return
		}
	}
}
