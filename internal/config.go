package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host      string `env:"HOST,required=true"`
	Port      int    `env:"PORT,required=true"`
	DebugPort int    `env:"DEBUG_PORT,required=true"`
	LogLevel  string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	MaxMessageLength    int           `env:"MAX_MESSAGE_LENGTH,required=true"`
	RoomCodeLength      int           `env:"ROOM_CODE_LENGTH,required=true"`
	MaxRoomParticipants int           `env:"MAX_ROOM_PARTICIPANTS,required=true"`
	BacklogLimit        int           `env:"BACKLOG_LIMIT,required=true"`
	RoomIdleThreshold   time.Duration `env:"ROOM_IDLE_THRESHOLD,required=true"`
	SweepInterval       time.Duration `env:"SWEEP_INTERVAL,required=true"`

	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`

	CharReplacement string `env:"CHARACTER_REPLACEMENT,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
