package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-rooms/internal/model"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Command
		request string
		wantErr string
	}{
		{
			name:    "join",
			raw:     `{"type":"room:join","requestId":"1","payload":{"roomId":" r1 "}}`,
			want:    JoinRoom{RoomID: "r1"},
			request: "1",
		},
		{
			name: "send defaults to text",
			raw:  `{"type":"message:send","payload":{"roomId":"r1","content":" hi "}}`,
			want: SendMessage{RoomID: "r1", Content: "hi", Type: model.MessageText},
		},
		{
			name: "image needs file url only",
			raw:  `{"type":"message:send","payload":{"roomId":"r1","messageType":"image","fileUrl":"/f.png"}}`,
			want: SendMessage{RoomID: "r1", Type: model.MessageImage, FileURL: "/f.png"},
		},
		{
			name: "reaction",
			raw:  `{"type":"message:reaction","payload":{"messageId":"m1","emoji":"👍","roomId":"r1"}}`,
			want: React{MessageID: "m1", Emoji: "👍", RoomID: "r1"},
		},
		{
			name: "read without room",
			raw:  `{"type":"message:read","payload":{"messageId":"m1"}}`,
			want: MarkRead{MessageID: "m1"},
		},
		{
			name: "private",
			raw:  `{"type":"private:message","payload":{"recipientId":"u2","content":"yo"}}`,
			want: SendPrivate{RecipientID: "u2", Content: "yo"},
		},
		{
			name:    "blank text",
			raw:     `{"type":"message:send","requestId":"7","payload":{"roomId":"r1","content":"   "}}`,
			request: "7",
			wantErr: "content is required",
		},
		{
			name:    "unknown message type",
			raw:     `{"type":"message:send","payload":{"roomId":"r1","content":"x","messageType":"video"}}`,
			wantErr: "unsupported messageType",
		},
		{
			name:    "file without url",
			raw:     `{"type":"message:send","payload":{"roomId":"r1","messageType":"file"}}`,
			wantErr: "fileUrl is required",
		},
		{
			name:    "empty emoji",
			raw:     `{"type":"message:reaction","payload":{"messageId":"m1","emoji":" "}}`,
			wantErr: "emoji is required",
		},
		{
			name:    "missing payload",
			raw:     `{"type":"typing:start"}`,
			wantErr: "invalid typing:start payload",
		},
		{
			name:    "wrong payload shape",
			raw:     `{"type":"room:leave","payload":"r1"}`,
			wantErr: "invalid room:leave payload",
		},
		{
			name:    "unknown type",
			raw:     `{"type":"room:delete","requestId":"x","payload":{}}`,
			request: "x",
			wantErr: "unsupported frame type",
		},
		{
			name:    "not json",
			raw:     `{`,
			wantErr: "invalid frame payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, requestID, err := DecodeCommand([]byte(tt.raw))
			assert.Equal(t, tt.request, requestID)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCommand)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestDecodeCommandContentLimit(t *testing.T) {
	long := strings.Repeat("é", maxContentRunes+1)
	_, _, err := DecodeCommand(frame(t, TypeSendMessage, "", SendMessage{RoomID: "r1", Content: long}))
	assert.ErrorIs(t, err, ErrInvalidCommand)

	ok := strings.Repeat("é", maxContentRunes)
	cmd, _, err := DecodeCommand(frame(t, TypeSendMessage, "", SendMessage{RoomID: "r1", Content: ok}))
	require.NoError(t, err)
	assert.Equal(t, ok, cmd.(SendMessage).Content)
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "room not found", publicMessage(JoinRoom{}, ErrRoomNotFound))
	assert.Equal(t, "Failed to send private message", publicMessage(SendPrivate{}, errBoom))
	assert.Equal(t, "Request failed", publicMessage(nil, errBoom))
}
