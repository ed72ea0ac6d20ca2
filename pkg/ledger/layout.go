package ledger

/////////////////////////////////////

// CONSTANTS FOR THE INSTALL TABLE ON FLASH

/////////////////////////////////////

// FLASH: ...|SENTINEL@0x40|RECORD@0x44|RECORD|...|END

const (
	// Where the "table initialized" magic lives
	SentinelOffset = 0x40

	// Size of the magic
	SentinelSize = 4

	// The magic literal, stored little-endian
	SentinelValue uint32 = 0x12345678

	// First record of the table
	BaseOffset = SentinelOffset + SentinelSize
)

/////////////////////////////////////

// CONSTANTS FOR ONE INSTALL RECORD

/////////////////////////////////////

// RECORD: STATUS|GAME_NAME|PAD|MAJOR|MINOR|USER_NAME

const (
	// Status byte
	statusOffset = 0

	// Game short name, NUL padded
	gameOffset = 1
	gameSize   = MaxGameNameLen + 1

	// Alignment padding before the first version word
	padSize = 3

	// Major and minor version, little-endian words
	majorOffset = gameOffset + gameSize + padSize
	minorOffset = majorOffset + 4

	// User name, NUL padded
	userOffset = minorOffset + 4
	userSize   = MaxUserNameLen + 1

	// The total size of a record
	RecordSize = userOffset + userSize
)
