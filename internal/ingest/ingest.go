// Package ingest turns scorer output into bidirectional match records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mirrormatch/mirrormatch/internal/data"
	"github.com/mirrormatch/mirrormatch/internal/normalize"
	"github.com/mirrormatch/mirrormatch/internal/roomid"
	"github.com/mirrormatch/mirrormatch/internal/scorer"
)

// ErrNoComparableImage is returned when the source user has no AI reference
// photo to compare from. Nothing is written.
var ErrNoComparableImage = errors.New("source user has no comparable image")

// UserStore is the subset of user persistence the ingestor needs.
type UserStore interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	GetUserByPhoto(ctx context.Context, photoRef string) (*data.User, error)
	ListCandidates(ctx context.Context, exclude bson.ObjectID) ([]*data.User, error)
	ReplaceOutgoingMatches(ctx context.Context, id bson.ObjectID, matches []data.MatchRecord) error
	AppendIncomingMatchIfAbsent(ctx context.Context, id bson.ObjectID, rec data.MatchRecord) (bool, error)
}

// CounterpartWrite identifies one counterpart whose incoming-list update failed.
type CounterpartWrite struct {
	UserID bson.ObjectID
	Err    error
}

// PartialError reports that the source user's outgoing list was written but
// some counterpart incoming-list updates failed. The failed writes are listed
// individually so a caller can retry just the missing links instead of
// re-running the whole comparison.
type PartialError struct {
	Failed []CounterpartWrite
}

func (e *PartialError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.UserID.Hex()
	}
	return fmt.Sprintf("match ingestion partially failed: %d counterpart write(s) did not persist (%s)",
		len(e.Failed), strings.Join(ids, ", "))
}

// Config carries the ingestor's tunables.
type Config struct {
	// Threshold is the exclusive upper bound on distance; a candidate at
	// exactly this distance is rejected.
	Threshold float64
	// UploadsDir holds candidate profile photos, AIFacesDir the source
	// reference photos.
	UploadsDir string
	AIFacesDir string
	// StagingRoot is where per-run candidate staging directories are
	// created; defaults to the OS temp dir.
	StagingRoot string
}

// Ingestor runs one comparison for a source user and persists the resulting
// match records on both sides of each pair.
type Ingestor struct {
	users UserStore
	sc    scorer.Scorer
	cfg   Config
}

// New returns an Ingestor wired with its user store and scorer.
func New(users UserStore, sc scorer.Scorer, cfg Config) *Ingestor {
	if cfg.StagingRoot == "" {
		cfg.StagingRoot = os.TempDir()
	}
	return &Ingestor{users: users, sc: sc, cfg: cfg}
}

// Run executes a comparison run for the given source user and returns the
// new outgoing match list.
//
// The run mutates nothing until the scorer has succeeded and every candidate
// has been resolved; after that the source user's outgoing list is replaced
// first, then each counterpart's incoming list is extended one by one. The
// writes are independent documents with no cross-record transaction, so a
// counterpart failure surfaces as *PartialError rather than rolling back the
// source (deliberate best-effort policy, kept from the observed system).
func (ing *Ingestor) Run(ctx context.Context, sourceID bson.ObjectID) ([]data.MatchRecord, error) {
	source, err := ing.users.GetUserByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if source.AIHalfPhoto == "" {
		return nil, ErrNoComparableImage
	}
	referenceImage := filepath.Join(ing.cfg.AIFacesDir, source.AIHalfPhoto)

	candidates, err := ing.users.ListCandidates(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	// Stage the candidate photos into a private per-run directory so the
	// scorer never sees the source user's own photo or files mid-upload.
	stagingDir := filepath.Join(ing.cfg.StagingRoot, "compare-"+uuid.NewString())
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	// Staging is removed on every exit path, success or failure.
	defer os.RemoveAll(stagingDir)

	staged := 0
	for _, c := range candidates {
		src := filepath.Join(ing.cfg.UploadsDir, c.ProfilePhoto)
		dst := filepath.Join(stagingDir, c.ProfilePhoto)
		if err := copyFile(src, dst); err != nil {
			// A user record pointing at a photo that no longer exists on
			// disk is stale data, not a reason to abort the whole run.
			continue
		}
		staged++
	}

	// No counterpart images at all is the trivial success: the outgoing
	// list still gets replaced, with nothing.
	if staged == 0 {
		if err := ing.users.ReplaceOutgoingMatches(ctx, sourceID, nil); err != nil {
			return nil, err
		}
		return []data.MatchRecord{}, nil
	}

	scored, err := ing.sc.Score(ctx, referenceImage, stagingDir)
	if err != nil {
		// scorer.ErrProcess or scorer.ErrOutput; no records were touched
		return nil, err
	}

	type pairing struct {
		counterpart *data.User
		outgoing    data.MatchRecord
	}

	var pairings []pairing
	seen := map[bson.ObjectID]bool{}
	for _, cand := range scored {
		// Threshold is exclusive: a candidate at exactly the threshold is
		// not a match.
		if cand.Distance >= ing.cfg.Threshold {
			continue
		}

		photoRef := normalize.PhotoRef(cand.Identity)
		matched, err := ing.users.GetUserByPhoto(ctx, photoRef)
		if err != nil {
			if errors.Is(err, data.ErrUserNotFound) {
				// stale or foreign scorer output; skip silently
				continue
			}
			return nil, err
		}

		// self-match is forbidden unconditionally
		if matched.ID == sourceID {
			continue
		}
		// scorer output is ranked, so the first pairing for a user is its
		// best one; later duplicates are dropped
		if seen[matched.ID] {
			continue
		}
		seen[matched.ID] = true

		room := roomid.ID(sourceID.Hex(), matched.ID.Hex())
		pairings = append(pairings, pairing{
			counterpart: matched,
			outgoing: data.MatchRecord{
				MatchedUserID: matched.ID,
				RoomID:        room,
				ImageRef:      photoRef,
				Distance:      cand.Distance,
				Confidence:    cand.Confidence,
			},
		})
	}

	outgoing := make([]data.MatchRecord, 0, len(pairings))
	for _, p := range pairings {
		outgoing = append(outgoing, p.outgoing)
	}

	// Source side first: last comparison wins, the previous outgoing list
	// is discarded wholesale.
	if err := ing.users.ReplaceOutgoingMatches(ctx, sourceID, outgoing); err != nil {
		return nil, err
	}

	// Counterpart side: append-if-absent keeps a rerun of the same pair from
	// duplicating the incoming list. Failures are collected, not fatal.
	var failed []CounterpartWrite
	for _, p := range pairings {
		rec := data.MatchRecord{
			MatchedUserID: sourceID,
			RoomID:        p.outgoing.RoomID,
			ImageRef:      source.ProfilePhoto,
			Distance:      p.outgoing.Distance,
			Confidence:    p.outgoing.Confidence,
		}
		if _, err := ing.users.AppendIncomingMatchIfAbsent(ctx, p.counterpart.ID, rec); err != nil {
			failed = append(failed, CounterpartWrite{UserID: p.counterpart.ID, Err: err})
		}
	}
	if len(failed) > 0 {
		return outgoing, &PartialError{Failed: failed}
	}

	return outgoing, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
