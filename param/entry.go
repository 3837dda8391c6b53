package param

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Entry represents a single log entry in a lane's log.
// ThisClock.Index is always PrevClock.Index + 1.
type Entry struct {
	PrevClock Clock
	ThisClock Clock
	Command   []byte // gob encoded Command
}

// NewEntry creates a new Entry following prev.
func NewEntry(prev Clock, term uint64, command []byte) Entry {
	return Entry{
		PrevClock: prev,
		ThisClock: Clock{Term: term, Index: prev.Index + 1},
		Command:   command,
	}
}

// CommandKind 区分日志条目承载的命令类型。
type CommandKind uint8

const (
	// CommandSnapshot 标记日志头部，表示该索引及之前的状态由快照提供。
	CommandSnapshot CommandKind = iota + 1
	// CommandBarrier 是新 Leader 在自己任期内追加的空条目。
	CommandBarrier
	// CommandMembership 携带完整的投票成员集合。
	CommandMembership
	// CommandWrite 携带客户端写请求。
	CommandWrite
)

func (k CommandKind) String() string {
	switch k {
	case CommandSnapshot:
		return "Snapshot"
	case CommandBarrier:
		return "Barrier"
	case CommandMembership:
		return "Membership"
	case CommandWrite:
		return "Write"
	default:
		return "Unknown"
	}
}

// Command is the payload stored in Entry.Command.
type Command struct {
	Kind       CommandKind
	RequestID  string   // only for CommandWrite
	Message    []byte   // only for CommandWrite
	Membership []NodeID // for CommandMembership and CommandSnapshot
}

func NewWriteCommand(requestID string, message []byte) Command {
	return Command{Kind: CommandWrite, RequestID: requestID, Message: message}
}

func NewMembershipCommand(members []NodeID) Command {
	return Command{Kind: CommandMembership, Membership: members}
}

func NewSnapshotCommand(members []NodeID) Command {
	return Command{Kind: CommandSnapshot, Membership: members}
}

func NewBarrierCommand() Command {
	return Command{Kind: CommandBarrier}
}

// EncodeCommand serializes a Command for storage in an Entry.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCommand is the inverse of EncodeCommand.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// MustEncodeCommand is EncodeCommand for commands built from trusted values.
func MustEncodeCommand(cmd Command) []byte {
	data, err := EncodeCommand(cmd)
	if err != nil {
		panic(err)
	}
	return data
}
