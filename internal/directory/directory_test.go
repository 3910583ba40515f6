package directory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"channel-clock/internal/directory/mocks"
	"channel-clock/internal/models"
)

var seoul = &models.Region{ID: "SEOUL", EntityID: "-1001"}

const label = "🇰🇷∥10：00 💼"

func TestPublisher_Publish(t *testing.T) {
	tests := []struct {
		name          string
		published     map[string]string
		buildMock     func(m *mocks.MockDirectory)
		wantOutcome   Outcome
		wantPublished bool
		wantErr       error
	}{
		{
			name:          "cached label makes no calls",
			published:     map[string]string{"SEOUL": label},
			buildMock:     func(m *mocks.MockDirectory) {},
			wantOutcome:   Unchanged,
			wantPublished: true,
		},
		{
			name:      "directory already shows the label",
			published: map[string]string{},
			buildMock: func(m *mocks.MockDirectory) {
				m.EXPECT().Label(gomock.Any(), "-1001").Return(label, nil).Times(1)
			},
			wantOutcome:   Unchanged,
			wantPublished: true,
		},
		{
			name:      "changed label is written",
			published: map[string]string{"SEOUL": "🇰🇷∥09：50 🏠"},
			buildMock: func(m *mocks.MockDirectory) {
				m.EXPECT().Label(gomock.Any(), "-1001").Return("🇰🇷∥09：50 🏠", nil).Times(1)
				m.EXPECT().Rename(gomock.Any(), "-1001", label).Return(nil).Times(1)
			},
			wantOutcome:   Written,
			wantPublished: true,
		},
		{
			name:      "forbidden label read skips the rename",
			published: map[string]string{},
			buildMock: func(m *mocks.MockDirectory) {
				m.EXPECT().Label(gomock.Any(), "-1001").Return("", fmt.Errorf("%w: kicked", ErrForbidden)).Times(1)
			},
			wantOutcome: Forbidden,
			wantErr:     ErrForbidden,
		},
		{
			name:      "transient label read still renames",
			published: map[string]string{},
			buildMock: func(m *mocks.MockDirectory) {
				m.EXPECT().Label(gomock.Any(), "-1001").Return("", errors.New("timeout")).Times(1)
				m.EXPECT().Rename(gomock.Any(), "-1001", label).Return(nil).Times(1)
			},
			wantOutcome:   Written,
			wantPublished: true,
		},
		{
			name:      "missing entity",
			published: map[string]string{},
			buildMock: func(m *mocks.MockDirectory) {
				m.EXPECT().Label(gomock.Any(), "-1001").Return("old", nil).Times(1)
				m.EXPECT().Rename(gomock.Any(), "-1001", label).Return(fmt.Errorf("%w: gone", ErrNotFound)).Times(1)
			},
			wantOutcome: NotFound,
			wantErr:     ErrNotFound,
		},
		{
			name:      "transient rename failure",
			published: map[string]string{},
			buildMock: func(m *mocks.MockDirectory) {
				m.EXPECT().Label(gomock.Any(), "-1001").Return("old", nil).Times(1)
				m.EXPECT().Rename(gomock.Any(), "-1001", label).Return(errors.New("502")).Times(1)
			},
			wantOutcome: Transient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			dir := mocks.NewMockDirectory(ctrl)
			tt.buildMock(dir)

			res := NewPublisher(dir, 5).Publish(context.Background(), tt.published, seoul, label)

			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, "SEOUL", res.RegionID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			}
			if tt.wantOutcome == Transient {
				assert.Error(t, res.Err)
			}
			if tt.wantPublished {
				assert.Equal(t, label, tt.published["SEOUL"])
			} else {
				assert.NotEqual(t, label, tt.published["SEOUL"])
			}
		})
	}
}

func TestPublisher_SameLabelTwiceWritesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	dir.EXPECT().Label(gomock.Any(), "-1001").Return("old", nil).Times(1)
	dir.EXPECT().Rename(gomock.Any(), "-1001", label).Return(nil).Times(1)

	p := NewPublisher(dir, 5)
	published := map[string]string{}

	assert.Equal(t, Written, p.Publish(context.Background(), published, seoul, label).Outcome)
	assert.Equal(t, Unchanged, p.Publish(context.Background(), published, seoul, label).Outcome)
}

func TestPublisher_IgnoresShutdownCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	dir.EXPECT().Label(gomock.Any(), "-1001").Return("old", nil).Times(1)
	dir.EXPECT().Rename(gomock.Any(), "-1001", label).
		DoAndReturn(func(ctx context.Context, _, _ string) error {
			assert.NoError(t, ctx.Err())
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return nil
		}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewPublisher(dir, 5).Publish(ctx, map[string]string{}, seoul, label)
	assert.Equal(t, Written, res.Outcome)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "written", Written.String())
	assert.Equal(t, "forbidden", Forbidden.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "transient", Transient.String())
}
