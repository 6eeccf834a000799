package wire

import (
	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/pkg/id"
)

// Handle addresses a container or stream the driver holds open for a
// client. Handles are time-ordered, so one issued by an earlier driver
// process never matches a live handle.
type Handle = id.ID

var (
	_ Message = (*Ack)(nil)
	_ Message = (*CreateContainerRequest)(nil)
	_ Message = (*OpenContainerRequest)(nil)
	_ Message = (*DeleteContainerRequest)(nil)
	_ Message = (*ContainerReply)(nil)
	_ Message = (*HandleRequest)(nil)
	_ Message = (*StatsReply)(nil)
	_ Message = (*FunctionalReply)(nil)
	_ Message = (*StreamRequest)(nil)
	_ Message = (*StreamReply)(nil)
	_ Message = (*AliasRequest)(nil)
	_ Message = (*AliasReply)(nil)
	_ Message = (*WriteRequest)(nil)
	_ Message = (*ReadRequest)(nil)
	_ Message = (*Block)(nil)
	_ Message = (*ReadReply)(nil)
	_ Message = (*TruncateRequest)(nil)
	_ Message = (*ControlRequest)(nil)
	_ Message = (*ControlReply)(nil)
	_ Message = (*WaitRequest)(nil)
)

// Ack is the reply of operations without a result.
type Ack struct {
	OK bool
}

func (m *Ack) MarshalAppend(b []byte) []byte { return appendBool(b, 1, m.OK) }

func (m *Ack) Unmarshal(b []byte) error {
	*m = Ack{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			m.OK = f.bool()
		}
		return nil
	})
}

type CreateContainerRequest struct {
	Path         string
	ID           uuid.UUID
	Capacity     int64
	MaxStreams   int
	MaxBlockSize int
}

func (m *CreateContainerRequest) MarshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.Path)
	b = appendUUID(b, 2, m.ID)
	b = appendInt64(b, 3, m.Capacity)
	b = appendInt64(b, 4, int64(m.MaxStreams))
	return appendInt64(b, 5, int64(m.MaxBlockSize))
}

func (m *CreateContainerRequest) Unmarshal(b []byte) error {
	*m = CreateContainerRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Path = f.str()
		case 2:
			m.ID, err = f.uuid()
		case 3:
			m.Capacity = f.int64()
		case 4:
			m.MaxStreams = f.int()
		case 5:
			m.MaxBlockSize = f.int()
		}
		return err
	})
}

type OpenContainerRequest struct {
	Path string
	ID   uuid.UUID
}

func (m *OpenContainerRequest) MarshalAppend(b []byte) []byte {
	return appendUUID(appendString(b, 1, m.Path), 2, m.ID)
}

func (m *OpenContainerRequest) Unmarshal(b []byte) error {
	*m = OpenContainerRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Path = f.str()
		case 2:
			m.ID, err = f.uuid()
		}
		return err
	})
}

type DeleteContainerRequest struct {
	Path string
	ID   uuid.UUID
}

func (m *DeleteContainerRequest) MarshalAppend(b []byte) []byte {
	return appendUUID(appendString(b, 1, m.Path), 2, m.ID)
}

func (m *DeleteContainerRequest) Unmarshal(b []byte) error {
	*m = DeleteContainerRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Path = f.str()
		case 2:
			m.ID, err = f.uuid()
		}
		return err
	})
}

type ContainerReply struct {
	Handle Handle
	ID     uuid.UUID
}

func (m *ContainerReply) MarshalAppend(b []byte) []byte {
	return appendUUID(appendHandle(b, 1, m.Handle), 2, m.ID)
}

func (m *ContainerReply) Unmarshal(b []byte) error {
	*m = ContainerReply{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Handle, err = f.handle()
		case 2:
			m.ID, err = f.uuid()
		}
		return err
	})
}

// HandleRequest addresses an open container or stream.
type HandleRequest struct {
	Handle Handle
}

func (m *HandleRequest) MarshalAppend(b []byte) []byte { return appendHandle(b, 1, m.Handle) }

func (m *HandleRequest) Unmarshal(b []byte) error {
	*m = HandleRequest{}
	return walk(b, func(f field) (err error) {
		if f.num == 1 {
			m.Handle, err = f.handle()
		}
		return err
	})
}

type StatsReply struct {
	ID           uuid.UUID
	Path         string
	Capacity     int64
	Used         int64
	Streams      int
	MaxStreams   int
	MaxBlockSize int
}

func (m *StatsReply) MarshalAppend(b []byte) []byte {
	b = appendUUID(b, 1, m.ID)
	b = appendString(b, 2, m.Path)
	b = appendInt64(b, 3, m.Capacity)
	b = appendInt64(b, 4, m.Used)
	b = appendInt64(b, 5, int64(m.Streams))
	b = appendInt64(b, 6, int64(m.MaxStreams))
	return appendInt64(b, 7, int64(m.MaxBlockSize))
}

func (m *StatsReply) Unmarshal(b []byte) error {
	*m = StatsReply{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ID, err = f.uuid()
		case 2:
			m.Path = f.str()
		case 3:
			m.Capacity = f.int64()
		case 4:
			m.Used = f.int64()
		case 5:
			m.Streams = f.int()
		case 6:
			m.MaxStreams = f.int()
		case 7:
			m.MaxBlockSize = f.int()
		}
		return err
	})
}

type FunctionalReply struct {
	Functional bool
}

func (m *FunctionalReply) MarshalAppend(b []byte) []byte { return appendBool(b, 1, m.Functional) }

func (m *FunctionalReply) Unmarshal(b []byte) error {
	*m = FunctionalReply{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			m.Functional = f.bool()
		}
		return nil
	})
}

type StreamRequest struct {
	Container Handle
	ID        uuid.UUID
	Alias     string
}

func (m *StreamRequest) MarshalAppend(b []byte) []byte {
	b = appendHandle(b, 1, m.Container)
	b = appendUUID(b, 2, m.ID)
	return appendString(b, 3, m.Alias)
}

func (m *StreamRequest) Unmarshal(b []byte) error {
	*m = StreamRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Container, err = f.handle()
		case 2:
			m.ID, err = f.uuid()
		case 3:
			m.Alias = f.str()
		}
		return err
	})
}

type StreamReply struct {
	Handle Handle
	ID     uuid.UUID
}

func (m *StreamReply) MarshalAppend(b []byte) []byte {
	return appendUUID(appendHandle(b, 1, m.Handle), 2, m.ID)
}

func (m *StreamReply) Unmarshal(b []byte) error {
	*m = StreamReply{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Handle, err = f.handle()
		case 2:
			m.ID, err = f.uuid()
		}
		return err
	})
}

type AliasRequest struct {
	Container Handle
	Alias     string
	ID        uuid.UUID
}

func (m *AliasRequest) MarshalAppend(b []byte) []byte {
	b = appendHandle(b, 1, m.Container)
	b = appendString(b, 2, m.Alias)
	return appendUUID(b, 3, m.ID)
}

func (m *AliasRequest) Unmarshal(b []byte) error {
	*m = AliasRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Container, err = f.handle()
		case 2:
			m.Alias = f.str()
		case 3:
			m.ID, err = f.uuid()
		}
		return err
	})
}

type AliasReply struct {
	ID uuid.UUID
}

func (m *AliasReply) MarshalAppend(b []byte) []byte { return appendUUID(b, 1, m.ID) }

func (m *AliasReply) Unmarshal(b []byte) error {
	*m = AliasReply{}
	return walk(b, func(f field) (err error) {
		if f.num == 1 {
			m.ID, err = f.uuid()
		}
		return err
	})
}

type WriteRequest struct {
	Stream   Handle
	Version  uint64
	Asn      int64
	Metadata []byte
	Payload  []byte
}

func (m *WriteRequest) MarshalAppend(b []byte) []byte {
	b = appendHandle(b, 1, m.Stream)
	b = appendVarint(b, 2, m.Version)
	b = appendSint64(b, 3, m.Asn)
	b = appendBytes(b, 4, m.Metadata)
	return appendBytes(b, 5, m.Payload)
}

func (m *WriteRequest) Unmarshal(b []byte) error {
	*m = WriteRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Stream, err = f.handle()
		case 2:
			m.Version = f.x
		case 3:
			m.Asn = f.sint64()
		case 4:
			m.Metadata = f.bytes()
		case 5:
			m.Payload = f.bytes()
		}
		return err
	})
}

type ReadRequest struct {
	Stream Handle
	Asn    int64
	Budget int
}

func (m *ReadRequest) MarshalAppend(b []byte) []byte {
	b = appendHandle(b, 1, m.Stream)
	b = appendSint64(b, 2, m.Asn)
	return appendInt64(b, 3, int64(m.Budget))
}

func (m *ReadRequest) Unmarshal(b []byte) error {
	*m = ReadRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Stream, err = f.handle()
		case 2:
			m.Asn = f.sint64()
		case 3:
			m.Budget = f.int()
		}
		return err
	})
}

type Block struct {
	Version  uint64
	Asn      int64
	Metadata []byte
	Payload  []byte
	Limit    int64
}

func (m *Block) MarshalAppend(b []byte) []byte {
	b = appendVarint(b, 1, m.Version)
	b = appendSint64(b, 2, m.Asn)
	b = appendBytes(b, 3, m.Metadata)
	b = appendBytes(b, 4, m.Payload)
	return appendSint64(b, 5, m.Limit)
}

func (m *Block) Unmarshal(b []byte) error {
	*m = Block{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Version = f.x
		case 2:
			m.Asn = f.sint64()
		case 3:
			m.Metadata = f.bytes()
		case 4:
			m.Payload = f.bytes()
		case 5:
			m.Limit = f.sint64()
		}
		return nil
	})
}

type ReadReply struct {
	Blocks []Block
}

func (m *ReadReply) MarshalAppend(b []byte) []byte {
	for i := range m.Blocks {
		b = appendMessage(b, 1, &m.Blocks[i])
	}
	return b
}

func (m *ReadReply) Unmarshal(b []byte) error {
	*m = ReadReply{}
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var blk Block
		if err := blk.Unmarshal(f.raw); err != nil {
			return err
		}
		m.Blocks = append(m.Blocks, blk)
		return nil
	})
}

type TruncateRequest struct {
	Stream Handle
	Head   int64
	Tail   int64
}

func (m *TruncateRequest) MarshalAppend(b []byte) []byte {
	b = appendHandle(b, 1, m.Stream)
	b = appendSint64(b, 2, m.Head)
	return appendSint64(b, 3, m.Tail)
}

func (m *TruncateRequest) Unmarshal(b []byte) error {
	*m = TruncateRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Stream, err = f.handle()
		case 2:
			m.Head = f.sint64()
		case 3:
			m.Tail = f.sint64()
		}
		return err
	})
}

type ControlRequest struct {
	Stream Handle
	Code   uint32
	Input  []byte
}

func (m *ControlRequest) MarshalAppend(b []byte) []byte {
	b = appendHandle(b, 1, m.Stream)
	b = appendVarint(b, 2, uint64(m.Code))
	return appendBytes(b, 3, m.Input)
}

func (m *ControlRequest) Unmarshal(b []byte) error {
	*m = ControlRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Stream, err = f.handle()
		case 2:
			m.Code = uint32(f.x)
		case 3:
			m.Input = f.bytes()
		}
		return err
	})
}

type ControlReply struct {
	Output []byte
}

func (m *ControlReply) MarshalAppend(b []byte) []byte { return appendBytes(b, 1, m.Output) }

func (m *ControlReply) Unmarshal(b []byte) error {
	*m = ControlReply{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			m.Output = f.bytes()
		}
		return nil
	})
}

type WaitRequest struct {
	Stream Handle
	Kind   uint32
	Value  int64
}

func (m *WaitRequest) MarshalAppend(b []byte) []byte {
	b = appendHandle(b, 1, m.Stream)
	b = appendVarint(b, 2, uint64(m.Kind))
	return appendInt64(b, 3, m.Value)
}

func (m *WaitRequest) Unmarshal(b []byte) error {
	*m = WaitRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Stream, err = f.handle()
		case 2:
			m.Kind = uint32(f.x)
		case 3:
			m.Value = f.int64()
		}
		return err
	})
}
