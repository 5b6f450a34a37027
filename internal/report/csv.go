package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/roadscan/speedcam/internal/pipeline"
)

var csvHeader = []string{
	"track_id", "class", "entry_frame", "exit_frame",
	"speed_kmh", "overspeed", "plate", "plate_confidence",
}

// WriteCSV writes one row per vehicle record. A vehicle without a
// resolved plate gets "N/A" in the plate column.
func WriteCSV(w io.Writer, records []pipeline.VehicleRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "can't write csv header")
	}
	for _, rec := range records {
		plate := rec.Plate
		if plate == "" {
			plate = "N/A"
		}
		row := []string{
			strconv.FormatInt(rec.TrackID, 10),
			rec.Class.String(),
			strconv.Itoa(rec.EntryFrame),
			strconv.Itoa(rec.ExitFrame),
			strconv.FormatFloat(rec.SpeedKmh, 'f', 1, 64),
			strconv.FormatBool(rec.Overspeed),
			plate,
			strconv.FormatFloat(rec.PlateConfidence, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "can't write record for track %d", rec.TrackID)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "csv flush failed")
}
