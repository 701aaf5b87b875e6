// Package protocols stores signed meeting protocols in S3. The presence of
// the signed PDF is what the completion check reads.
package protocols

import (
	"context"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/storage"
)

// ObjectStore is the slice of the S3 client protocols need.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
}

// Source implements governance.ProtocolSource over an ObjectStore.
type Source struct {
	objects ObjectStore
}

// NewSource creates a protocol source.
func NewSource(objects ObjectStore) *Source {
	return &Source{objects: objects}
}

// IsProtocolSigned reports whether the signed protocol of the meeting was uploaded.
func (s *Source) IsProtocolSigned(ctx context.Context, meetingID uuid.UUID) (bool, error) {
	return s.objects.Exists(ctx, storage.ProtocolKey(meetingID.String()))
}

// MeetingReader loads meetings.
type MeetingReader interface {
	GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
}

// Authorizer checks a user's standing in an organization.
type Authorizer interface {
	Authorize(ctx context.Context, orgID, userID uuid.UUID, roles ...models.MembershipRole) (*models.Membership, error)
}

var managers = []models.MembershipRole{models.MemberRoleOwner, models.MemberRoleBoard}

// Service handles protocol uploads and status reads.
type Service struct {
	objects  ObjectStore
	meetings MeetingReader
	auth     Authorizer
	logger   *zap.Logger
}

// NewService creates a protocols service.
func NewService(objects ObjectStore, meetings MeetingReader, auth Authorizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{objects: objects, meetings: meetings, auth: auth, logger: logger}
}

// UploadTarget is a pre-signed upload location.
type UploadTarget struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

// Status is the signature state of a meeting's protocol.
type Status struct {
	MeetingID   uuid.UUID `json:"meeting_id"`
	Signed      bool      `json:"signed"`
	DownloadURL string    `json:"download_url,omitempty"`
}

func (s *Service) load(ctx context.Context, actor, meetingID uuid.UUID, roles ...models.MembershipRole) (*models.Meeting, error) {
	m, err := s.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, governance.Failed("get meeting", err)
	}
	if _, err := s.auth.Authorize(ctx, m.OrganizationID, actor, roles...); err != nil {
		return nil, err
	}
	return m, nil
}

func writable(m *models.Meeting) error {
	if m.Status != models.MeetingPublished {
		return governance.Errorf(governance.KindInvalidInput, "protocols can only be uploaded for published meetings, meeting %s is %s", m.ID, m.Status)
	}
	return nil
}

// UploadURL returns a pre-signed PUT URL for the signed protocol.
func (s *Service) UploadURL(ctx context.Context, actor, meetingID uuid.UUID) (*UploadTarget, error) {
	m, err := s.load(ctx, actor, meetingID, managers...)
	if err != nil {
		return nil, err
	}
	if err := writable(m); err != nil {
		return nil, err
	}
	key := storage.ProtocolKey(meetingID.String())
	url, err := s.objects.PresignPut(ctx, key, storage.ProtocolContentType)
	if err != nil {
		return nil, governance.Failed("presign protocol upload", err)
	}
	return &UploadTarget{URL: url, Key: key, ContentType: storage.ProtocolContentType}, nil
}

// Upload stores the signed protocol sent through the API.
func (s *Service) Upload(ctx context.Context, actor, meetingID uuid.UUID, body io.Reader, size int64) error {
	m, err := s.load(ctx, actor, meetingID, managers...)
	if err != nil {
		return err
	}
	if err := writable(m); err != nil {
		return err
	}
	if size > storage.MaxProtocolFileSize {
		return governance.Errorf(governance.KindInvalidInput, "protocol exceeds %d bytes", storage.MaxProtocolFileSize)
	}
	key := storage.ProtocolKey(meetingID.String())
	if err := s.objects.Put(ctx, key, storage.ProtocolContentType, body, size); err != nil {
		return governance.Failed("upload protocol", err)
	}
	s.logger.Info("protocol uploaded", zap.String("meeting_id", meetingID.String()), zap.String("user_id", actor.String()))
	return nil
}

// Status reports whether the signed protocol exists, with a download link when it does.
func (s *Service) Status(ctx context.Context, actor, meetingID uuid.UUID) (*Status, error) {
	if _, err := s.load(ctx, actor, meetingID); err != nil {
		return nil, err
	}
	key := storage.ProtocolKey(meetingID.String())
	ok, err := s.objects.Exists(ctx, key)
	if err != nil {
		return nil, governance.Failed("check protocol", err)
	}
	st := &Status{MeetingID: meetingID, Signed: ok}
	if ok {
		if st.DownloadURL, err = s.objects.PresignGet(ctx, key); err != nil {
			return nil, governance.Failed("presign protocol download", err)
		}
	}
	return st, nil
}
