package queue

import (
    "bytes"
    "encoding/json"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/haunted-house-queue/internal/model"
)

func sampleReservation() model.Reservation {
    return model.Reservation{
        ID:                       "r-1",
        QueueID:                  "q-1",
        Code:                     "ABC234",
        RepresentativeCustomerID: "S1",
        MaxSpots:                 3,
        CurrentSpots:             1,
        ExpiresAt:                time.Date(2026, 10, 31, 20, 15, 0, 0, time.UTC),
        Status:                   model.ReservationActive,
    }
}

func TestNewReservationEvent(t *testing.T) {
    at := time.Date(2026, 10, 31, 20, 0, 0, 0, time.UTC)
    ev := NewReservationEvent(ReservationCreated, sampleReservation(), at)

    assert.Equal(t, ReservationCreated, ev.Kind)
    assert.Equal(t, "ABC234", ev.Code)
    assert.Equal(t, "active", ev.Status)
    assert.Equal(t, "2026-10-31T20:15:00Z", ev.ExpiresAt)
    assert.Equal(t, "2026-10-31T20:00:00Z", ev.OccurredAt)
}

func TestWriteAuditLine(t *testing.T) {
    var buf bytes.Buffer
    ev := NewReservationEvent(ReservationExpired, sampleReservation(), time.Unix(0, 0))
    require.NoError(t, WriteAuditLine(&buf, ev))
    assert.Contains(t, buf.String(), "reservation.expired | reservation_id=r-1 | code=ABC234")
    assert.Contains(t, buf.String(), "spots=1/3")
}

func TestHandleAppendsToLog(t *testing.T) {
    path := filepath.Join(t.TempDir(), "logs", "reservations.log")
    c := &AuditConsumer{LogPath: path, Log: logrus.New()}

    body, err := json.Marshal(NewReservationEvent(ReservationCompleted, sampleReservation(), time.Now()))
    require.NoError(t, err)
    require.NoError(t, c.Handle(body))
    require.NoError(t, c.Handle(body))

    data, err := os.ReadFile(path)
    require.NoError(t, err)
    assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
}

func TestHandleRejectsMalformed(t *testing.T) {
    c := &AuditConsumer{LogPath: filepath.Join(t.TempDir(), "x.log"), Log: logrus.New()}
    assert.Error(t, c.Handle([]byte("{")))
    assert.Error(t, c.Handle([]byte(`{"kind":""}`)))
}
