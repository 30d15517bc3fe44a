package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeLine_Progress(t *testing.T) {
	ev, err := DecodeLine([]byte(`{"type":"progress","progress":{"step":"messages","message":"Reading messages..."}}`), "s1")
	require.NoError(t, err)
	require.Equal(t, ProgressEvent{SessionID: "s1", Step: StepPrimary, Message: "Reading messages..."}, ev)
}

func TestDecodeLine_Error(t *testing.T) {
	ev, err := DecodeLine([]byte(`{"type":"error","error":{"step":"scaffolding","title":"Invalid archive","message":"not a zip file"}}`), "s1")
	require.NoError(t, err)

	e, ok := ev.(ErrorEvent)
	require.True(t, ok)
	require.Equal(t, StepScaffolding, e.Step)
	require.Equal(t, "Invalid archive", e.Title)
	require.Equal(t, "not a zip file", e.Message)
	require.True(t, e.Step.AbortsSession())
}

func TestDecodeLine_Complete(t *testing.T) {
	line := `{"type":"complete","result":{"user":{"id":"1","username":"ayaka","discriminator":0,"avatarHash":null,"payments":[],"relationships":[]},` +
		`"topDms":[{"id":"9","dmUserId":"2","messageCount":12}],"topChannels":[],"guilds":[{"id":"3","name":"Lounge"}],` +
		`"dmChannelCount":1,"channelCount":4,"messageCount":120,"characterCount":4000,"hoursValues":[1,2,3],` +
		`"favoriteWords":[{"word":"hello","count":7}],"favoriteEmotes":[]}}`

	ev, err := DecodeLine([]byte(line), "s2")
	require.NoError(t, err)

	c, ok := ev.(CompleteEvent)
	require.True(t, ok)
	require.Equal(t, "s2", c.Session())
	require.NotNil(t, c.Result.User)
	require.Equal(t, "ayaka", c.Result.User.Username)
	require.Nil(t, c.Result.User.AvatarHash)
	require.Equal(t, 120, c.Result.MessageCount)
	require.Equal(t, "2", c.Result.TopDMs[0].DMUserID)
	require.Equal(t, []PhraseCount{{Word: "hello", Count: 7}}, c.Result.FavoriteWords)
}

func TestDecodeLine_AnalyticsComplete(t *testing.T) {
	line := `{"type":"analyticsComplete","result":{"appOpened":5,"oauth2AuthorizeAccepted":2,"allEvents":99,` +
		`"mostUsedCommands":[{"commandId":"c1","applicationId":"a1","commandName":"ping","count":3}]}}`

	ev, err := DecodeLine([]byte(line), "s3")
	require.NoError(t, err)

	a, ok := ev.(AnalyticsCompleteEvent)
	require.True(t, ok)
	require.Equal(t, 5, a.Result.AppOpened)
	require.Equal(t, 2, a.Result.OAuth2AuthorizeAccepted)
	require.Equal(t, 99, a.Result.AllEvents)
	require.Len(t, a.Result.MostUsedCommands, 1)
	require.Equal(t, "ping", *a.Result.MostUsedCommands[0].CommandName)
	require.Nil(t, a.Result.MostUsedCommands[0].CommandDescription)
}

func TestDecodeLine_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{name: "unknown type", line: `{"type":"heartbeat"}`, wantErr: ErrUnknownEventType},
		{name: "unknown step", line: `{"type":"progress","progress":{"step":"voice","message":"x"}}`, wantErr: ErrUnknownStep},
		{name: "not json", line: `Loading...`},
		{name: "progress without payload", line: `{"type":"progress"}`},
		{name: "complete without result", line: `{"type":"complete"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLine([]byte(tt.line), "s")
			require.Error(t, err)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestEncodeLine_UsesWireStepNames(t *testing.T) {
	line, err := EncodeLine(ProgressEvent{SessionID: "ignored", Step: StepPrimary, Message: "Loading user data..."})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"progress","progress":{"step":"messages","message":"Loading user data..."}}`, string(line))

	line, err = EncodeLine(ErrorEvent{Step: StepAnalytics, Title: "Analytics failed", Message: "bad json"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","error":{"step":"analytics","title":"Analytics failed","message":"bad json"}}`, string(line))
}

func TestEncodeLine_DecodesBack(t *testing.T) {
	events := []Event{
		ProgressEvent{SessionID: "x", Step: StepAnalytics, Message: "Loading analytics..."},
		ErrorEvent{SessionID: "x", Step: StepScaffolding, Title: "t", Message: "m"},
		CompleteEvent{SessionID: "x", Result: PrimaryResult{MessageCount: 3, HoursValues: []int{1, 2}}},
		AnalyticsCompleteEvent{SessionID: "x", Result: AnalyticsResult{AllEvents: 8}},
	}
	for _, ev := range events {
		t.Run(Kind(ev), func(t *testing.T) {
			line, err := EncodeLine(ev)
			require.NoError(t, err)
			got, err := DecodeLine(line, "x")
			require.NoError(t, err)
			require.Equal(t, ev, got)
		})
	}
}

func TestParseStep(t *testing.T) {
	for in, want := range map[string]Step{
		"messages":    StepPrimary,
		"primary":     StepPrimary,
		"analytics":   StepAnalytics,
		"scaffolding": StepScaffolding,
	} {
		got, err := ParseStep(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseStep("")
	require.ErrorIs(t, err, ErrUnknownStep)

	require.False(t, StepAnalytics.AbortsSession())
	require.True(t, StepPrimary.AbortsSession())
}
