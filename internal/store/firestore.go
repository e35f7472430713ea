package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Simplici0/printbill/internal/estimate"
)

const billsCollection = "bills"

// Firestore stores estimates as documents of the bills collection.
type Firestore struct {
	client *firestore.Client
	Now    func() time.Time
}

// firestoreDoc is the stored shape of an estimate.
type firestoreDoc struct {
	JobType     string         `firestore:"jobType"`
	ClientID    string         `firestore:"clientId"`
	ClientName  string         `firestore:"clientName"`
	ProjectName string         `firestore:"projectName"`
	VersionID   string         `firestore:"versionId"`
	Tree        map[string]any `firestore:"tree"`
	Result      string         `firestore:"result"`
	Total       float64        `firestore:"total"`
	MarkupType  string         `firestore:"markupType"`
	CreatedBy   string         `firestore:"createdBy"`
	CreatedAt   time.Time      `firestore:"createdAt"`
	UpdatedAt   time.Time      `firestore:"updatedAt"`
}

// OpenFirestore initializes a Firestore client through the Firebase SDK
// using application default credentials.
func OpenFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore: %w", err)
	}
	return &Firestore{client: client, Now: time.Now}, nil
}

func (s *Firestore) Close() error {
	return s.client.Close()
}

func toDoc(e Estimate, now time.Time) (firestoreDoc, error) {
	resultJSON, err := encodeResult(e.Result)
	if err != nil {
		return firestoreDoc{}, err
	}
	d := firestoreDoc{
		JobType:     e.Tree.JobType,
		ClientID:    e.Tree.Client.ID,
		ClientName:  e.Tree.Client.Name,
		ProjectName: e.Tree.OrderAndPaper.ProjectName,
		VersionID:   e.Tree.VersionID,
		Tree:        estimate.Flatten(e.Tree),
		Result:      resultJSON,
		MarkupType:  e.MarkupType,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   now,
	}
	if e.Result != nil {
		d.Total = e.Result.Totals.Total
	}
	return d, nil
}

func fromDoc(id string, d firestoreDoc) (Estimate, error) {
	tree, err := estimate.Unflatten(d.Tree)
	if err != nil {
		return Estimate{}, fmt.Errorf("decode tree: %w", err)
	}
	result, err := decodeResult(d.Result)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		ID:         id,
		Tree:       tree,
		Result:     result,
		MarkupType: d.MarkupType,
		CreatedBy:  d.CreatedBy,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

func (s *Firestore) Save(ctx context.Context, e Estimate) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	d, err := toDoc(e, now)
	if err != nil {
		return "", err
	}
	if _, err := s.client.Collection(billsCollection).Doc(e.ID).Set(ctx, d); err != nil {
		return "", fmt.Errorf("save estimate %s: %w", e.ID, err)
	}
	return e.ID, nil
}

func (s *Firestore) Load(ctx context.Context, id string) (Estimate, error) {
	snap, err := s.client.Collection(billsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Estimate{}, ErrNotFound
	}
	if err != nil {
		return Estimate{}, fmt.Errorf("load estimate %s: %w", id, err)
	}
	var d firestoreDoc
	if err := snap.DataTo(&d); err != nil {
		return Estimate{}, fmt.Errorf("decode estimate %s: %w", id, err)
	}
	return fromDoc(snap.Ref.ID, d)
}

func (s *Firestore) List(ctx context.Context, q Query) ([]Summary, error) {
	query := s.client.Collection(billsCollection).Query
	if q.ClientID != "" {
		// Needs the (clientId, createdAt desc) composite index.
		query = query.Where("clientId", "==", q.ClientID)
	}
	iter := query.
		OrderBy("createdAt", firestore.Desc).
		Limit(q.limit() * 4).
		Documents(ctx)
	defer iter.Stop()

	out := make([]Summary, 0)
	for len(out) < q.limit() {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list estimates: %w", err)
		}
		var d firestoreDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode estimate %s: %w", snap.Ref.ID, err)
		}
		if !matches(q.Search, d.ClientName, d.ProjectName) {
			continue
		}
		out = append(out, Summary{
			ID:          snap.Ref.ID,
			JobType:     d.JobType,
			ClientName:  d.ClientName,
			ProjectName: d.ProjectName,
			Total:       d.Total,
			CreatedAt:   d.CreatedAt,
		})
	}
	return out, nil
}

func (s *Firestore) Delete(ctx context.Context, id string) error {
	ref := s.client.Collection(billsCollection).Doc(id)
	if _, err := ref.Get(ctx); status.Code(err) == codes.NotFound {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("load estimate %s: %w", id, err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete estimate %s: %w", id, err)
	}
	return nil
}
