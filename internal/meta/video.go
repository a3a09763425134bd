package meta

import (
	"errors"
	"io"
	"time"

	"github.com/abema/go-mp4"
	"github.com/dhowden/tag"
)

// Seconds between the QuickTime epoch (1904-01-01) and the Unix epoch
const quickTimeEpochOffset = 2082844800

var errStopWalk = errors.New("stop")

// readMovieHeader reads the creation time from the moov/mvhd box.
// A zero creation time means the recorder never set it.
func readMovieHeader(r io.ReadSeeker) (Metadata, error) {
	var created uint64
	_, err := mp4.ReadBoxStructure(r, func(h *mp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case mp4.BoxTypeMoov():
			return h.Expand()
		case mp4.BoxTypeMvhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mvhd, ok := box.(*mp4.Mvhd)
			if !ok {
				return nil, nil
			}
			if mvhd.GetVersion() == 0 {
				created = uint64(mvhd.CreationTimeV0)
			} else {
				created = mvhd.CreationTimeV1
			}
			return nil, errStopWalk
		}
		return nil, nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return Metadata{}, err
	}

	ts := quickTimeToLocal(created)
	if ts == nil {
		return Metadata{}, nil
	}
	return Metadata{CapturedAt: ts, Source: "mp4:mvhd"}, nil
}

func quickTimeToLocal(secs uint64) *time.Time {
	if secs <= quickTimeEpochOffset {
		return nil
	}
	ts := time.Unix(int64(secs-quickTimeEpochOffset), 0).Local()
	return &ts
}

// quickTimeDayLayouts are the shapes seen in the ©day atom
var quickTimeDayLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
}

// readQuickTimeTags reads the iTunes-style ©day atom some phones write
// instead of (or in addition to) a populated mvhd.
func readQuickTimeTags(r io.ReadSeeker) (Metadata, error) {
	m, err := tag.ReadFrom(r)
	if err != nil {
		return Metadata{}, err
	}

	raw, ok := m.Raw()["\xa9day"].(string)
	if !ok {
		return Metadata{}, nil
	}
	if ts := parseRecordedTime(quickTimeDayLayouts, raw); ts != nil {
		return Metadata{CapturedAt: ts, Source: "mp4:©day"}, nil
	}
	return Metadata{}, nil
}
