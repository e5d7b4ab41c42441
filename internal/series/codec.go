package series

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Header is the first line of every encoded series.
const Header = "# TIME RATE ERROR"

// Encode writes s as whitespace-separated text. Floats use the shortest
// representation that parses back exactly, so encoding the same series
// always yields identical bytes.
func Encode(w io.Writer, s *RateSeries) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return err
	}
	buf := make([]byte, 0, 96)
	for i := 0; i < s.Len(); i++ {
		sm := s.Samples[i]
		buf = buf[:0]
		buf = strconv.AppendFloat(buf, sm.Time, 'g', -1, 64)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, sm.Rate, 'g', -1, 64)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, sm.Error, 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Marshal returns the encoded form of s.
func Marshal(s *RateSeries) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a text series. Lines starting with '#' and blank lines are
// ignored. Rows carry either TIME RATE ERROR or the four-column export layout
// TIME MJD RATE ERROR. A NaN rate or error (an empty bin) is kept as a row
// so the series stays aligned with its counterpart; NaN times are rejected.
func Decode(r io.Reader) (*RateSeries, error) {
	sc := bufio.NewScanner(r)
	var samples []Sample
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		var cols [3]string
		switch len(fields) {
		case 3:
			cols = [3]string{fields[0], fields[1], fields[2]}
		case 4:
			cols = [3]string{fields[0], fields[2], fields[3]}
		default:
			return nil, fmt.Errorf("line %d: want 3 or 4 columns, got %d", line, len(fields))
		}
		var vals [3]float64
		for i, c := range cols {
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vals[i] = v
		}
		if math.IsNaN(vals[0]) || math.IsInf(vals[0], 0) {
			return nil, fmt.Errorf("line %d: %w: time %q is not finite", line, ErrUnordered, cols[0])
		}
		samples = append(samples, Sample{Time: vals[0], Rate: vals[1], Error: vals[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	s := &RateSeries{Samples: samples}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Unmarshal decodes data.
func Unmarshal(data []byte) (*RateSeries, error) {
	return Decode(bytes.NewReader(data))
}
