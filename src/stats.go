package main

import (
	"context"
	"sort"
)

// Stats windows in simulated seconds
const (
	window1  = 60.0
	window5  = 5 * 60.0
	window15 = 15 * 60.0
)

// DisplayData holds all data needed for display
type DisplayData struct {
	Time      float64
	TopicData map[string]any
}

// GetFloat extracts FloatTopicData from DisplayData
// Returns a zero-valued FloatTopicData if topic doesn't exist or isn't a float topic
func (d *DisplayData) GetFloat(topic string) *FloatTopicData {
	if td, ok := d.TopicData[topic].(*FloatTopicData); ok {
		return td
	}
	return &FloatTopicData{}
}

// GetString extracts a string value from DisplayData
func (d *DisplayData) GetString(topic string) string {
	if td, ok := d.TopicData[topic].(*StringTopicData); ok {
		return td.Current
	}
	return ""
}

// GetBoolean extracts a boolean value from DisplayData
func (d *DisplayData) GetBoolean(topic string) bool {
	if td, ok := d.TopicData[topic].(*BooleanTopicData); ok {
		return td.Current
	}
	return false
}

// Reading represents a sensor reading at a simulated time
type Reading struct {
	Value float64
	Time  float64
}

// Readings is a collection of timestamped readings
type Readings []Reading

// TimeWindows holds values across 1, 5, and 15 minute windows
type TimeWindows struct {
	_1  float64
	_5  float64
	_15 float64
}

// FloatTopicData holds current value and statistics for a float topic
type FloatTopicData struct {
	Current float64
	P1      TimeWindows // 1st percentile (filters out low outliers)
	P50     TimeWindows // 50th percentile (median)
	P66     TimeWindows // 66th percentile
	P99     TimeWindows // 99th percentile (filters out high outliers)
}

// StringTopicData holds current value for a string topic
type StringTopicData struct {
	Current string
}

// BooleanTopicData holds current value for a boolean topic
type BooleanTopicData struct {
	Current bool
}

// weightedValue represents a value with its duration weight for percentile calculation
type weightedValue struct {
	value    float64
	duration float64
}

var percentileRanks = [4]float64{0.01, 0.50, 0.66, 0.99}

// calculateTimeWeightedPercentiles returns P1, P50, P66, and P99 in a single pass
// where each value is weighted by how long it persisted.
// The pairs slice must be sorted by value in ascending order.
func calculateTimeWeightedPercentiles(pairs []weightedValue, totalDuration float64) (p1, p50, p66, p99 float64) {
	if len(pairs) == 0 {
		return 0, 0, 0, 0
	}

	// Any rank not reached (rounding) falls back to the largest value
	last := pairs[len(pairs)-1].value
	result := [4]float64{last, last, last, last}
	next := 0

	var cumulative float64
	for _, pair := range pairs {
		cumulative += pair.duration
		for next < len(percentileRanks) && cumulative >= totalDuration*percentileRanks[next] {
			result[next] = pair.value
			next++
		}
		if next == len(percentileRanks) {
			break
		}
	}
	return result[0], result[1], result[2], result[3]
}

// calculateTimeWeightedStats computes time-weighted statistics for a window ending at now.
// Each reading is weighted by the time until the next reading.
func calculateTimeWeightedStats(readings Readings, window, now float64) (p1, p50, p66, p99 float64) {
	if len(readings) == 0 {
		return 0, 0, 0, 0
	}
	last := readings[len(readings)-1]

	cutoff := now - window
	start := sort.Search(len(readings), func(i int) bool { return readings[i].Time > cutoff })
	inWindow := readings[start:]

	// A single reading has no duration, so use the last known value
	if len(inWindow) <= 1 {
		v := last.Value
		return v, v, v, v
	}

	pairs := make([]weightedValue, 0, len(inWindow))
	var totalDuration float64
	for i, r := range inWindow {
		end := now
		if i < len(inWindow)-1 {
			end = inWindow[i+1].Time
		}
		pairs = append(pairs, weightedValue{value: r.Value, duration: end - r.Time})
		totalDuration += end - r.Time
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})
	return calculateTimeWeightedPercentiles(pairs, totalDuration)
}

// calculateStats computes time-weighted statistics for the three windows
func calculateStats(data *FloatTopicData, readings Readings, now float64) {
	if len(readings) == 0 {
		return
	}
	p1_1, p50_1, p66_1, p99_1 := calculateTimeWeightedStats(readings, window1, now)
	p1_5, p50_5, p66_5, p99_5 := calculateTimeWeightedStats(readings, window5, now)
	p1_15, p50_15, p66_15, p99_15 := calculateTimeWeightedStats(readings, window15, now)

	data.P1 = TimeWindows{_1: p1_1, _5: p1_5, _15: p1_15}
	data.P50 = TimeWindows{_1: p50_1, _5: p50_5, _15: p50_15}
	data.P66 = TimeWindows{_1: p66_1, _5: p66_5, _15: p66_15}
	data.P99 = TimeWindows{_1: p99_1, _5: p99_5, _15: p99_15}
}

// cloneTopicData creates a deep copy of topicData for safe concurrent access
func cloneTopicData(topicData map[string]any) map[string]any {
	clone := make(map[string]any, len(topicData))
	for topic, data := range topicData {
		switch d := data.(type) {
		case *FloatTopicData:
			c := *d
			clone[topic] = &c
		case *StringTopicData:
			clone[topic] = &StringTopicData{Current: d.Current}
		case *BooleanTopicData:
			clone[topic] = &BooleanTopicData{Current: d.Current}
		}
	}
	return clone
}

// axisMode summarizes what an axis is doing
func axisMode(a AxisState) string {
	switch {
	case a.Overridden:
		return "overridden"
	case a.Jogging:
		return "jogging"
	case a.Running:
		return "moving"
	case a.AtTarget:
		return "at_target"
	default:
		return "stopped"
	}
}

// stats accumulates readings per topic
type stats struct {
	topicData     map[string]any
	topicReadings map[string]Readings
}

func newStats() *stats {
	return &stats{topicData: map[string]any{}, topicReadings: map[string]Readings{}}
}

func (s *stats) setFloat(topic string, value, now float64) {
	data, ok := s.topicData[topic].(*FloatTopicData)
	if !ok {
		data = &FloatTopicData{}
		s.topicData[topic] = data
	}
	data.Current = value

	readings := s.topicReadings[topic]
	if n := len(readings); n > 0 && readings[n-1].Time > now {
		// Simulated time went backwards (state load), drop history
		readings = nil
	}
	readings = append(readings, Reading{Value: value, Time: now})
	s.topicReadings[topic] = readings
	calculateStats(data, readings, now)
}

func (s *stats) setBool(topic string, value bool) {
	s.topicData[topic] = &BooleanTopicData{Current: value}
}

func (s *stats) setString(topic, value string) {
	s.topicData[topic] = &StringTopicData{Current: value}
}

// update folds a plant frame into the statistics
func (s *stats) update(state PlantState) {
	now := state.Time
	for _, a := range state.Axes {
		s.setFloat(a.Name+"/position", a.Position, now)
		s.setFloat(a.Name+"/speed", a.Speed, now)
		s.setFloat(a.Name+"/travel", a.EnvelopeMax-a.EnvelopeMin, now)
		s.setBool(a.Name+"/at_target", a.AtTarget)
		s.setBool(a.Name+"/running", a.Running)
		s.setString(a.Name+"/mode", axisMode(a))
	}
	for name, v := range state.Signals {
		s.setBool("signal/"+name, v)
	}
}

// prune drops readings older than the longest window, keeping the most recent one
func (s *stats) prune(now float64) {
	cutoff := now - window15
	for topic, readings := range s.topicReadings {
		start := sort.Search(len(readings), func(i int) bool { return readings[i].Time > cutoff })
		if start == len(readings) {
			start = len(readings) - 1
		}
		if start > 0 {
			s.topicReadings[topic] = append(Readings(nil), readings[start:]...)
		}
	}
}

// statsWorker turns plant frames into per-topic statistics for the console
func statsWorker(ctx context.Context, inputChan <-chan PlantState, outputChan chan<- DisplayData) {
	s := newStats()
	frames := 0
	for {
		select {
		case state := <-inputChan:
			s.update(state)
			frames++
			if frames%100 == 0 {
				s.prune(state.Time)
			}

			select {
			case outputChan <- DisplayData{Time: state.Time, TopicData: cloneTopicData(s.topicData)}:
			case <-ctx.Done():
				return
			default:
				// Console is behind, it will catch up on the next frame
			}

		case <-ctx.Done():
			return
		}
	}
}
