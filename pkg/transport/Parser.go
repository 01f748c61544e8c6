package transport

import "encoding/binary"
import "hash/crc32"

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/utils"


//=========================================== RPC Parser


// sentinel for framing and checksum failures, channels close on it
var ErrParser = errors.New("rpc frame parse failure")

const frameMagic = uint16(0x4B32)
const frameHeaderSize = 10
const frameFlagChecksum = uint8(0x01)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

/*
	the framing contract for every verb on the wire, little-endian:

		uint16 magic (0x4B32)
		uint8  flags (bit 0: trailing crc32-c present)
		uint8  verb
		uint16 metadata size
		uint32 payload size
		<metadata json> <payload> [uint32 crc32-c over header+metadata+payload]

	a single inbound buffer may carry a partial record or several records,
	the parser accumulates and surfaces complete frames one at a time
*/

type Parser struct {
	buffer []byte
	enableTxChecksum bool
	errored bool

	messageObserver func(verb Verb, metadata MessageMetadata, payload []byte)
}

func NewParser(enableTxChecksum bool) *Parser {
	return &Parser{
		enableTxChecksum: enableTxChecksum,
	}
}

func (parser *Parser) RegisterMessageObserver(observer func(verb Verb, metadata MessageMetadata, payload []byte)) {
	parser.messageObserver = observer
}

/*
	append an inbound buffer to the accumulation buffer
*/

func (parser *Parser) Feed(data []byte) {
	if parser.errored { return }
	parser.buffer = append(parser.buffer, data...)
}

/*
	true if at least one complete frame is buffered and the parser has not
	hit a framing failure
*/

func (parser *Parser) CanDispatch() bool {
	if parser.errored { return false }

	_, complete := parser.peekFrameSize()
	return complete
}

/*
	Dispatch Some:
		parse and dispatch up to bound complete frames, so a single turn of
		the channel read loop stays bounded and yields

		1.) peek the total frame size, stop once the buffer holds a partial
		2.) verify magic and, when the checksum flag is set, the trailing crc
		3.) decode the metadata json and hand the message to the observer
		4.) on any framing failure mark the parser errored and surface the
			error, the channel transitions to closing
*/

func (parser *Parser) DispatchSome(bound int) error {
	if parser.errored { return ErrParser }

	for i := 0; i < bound; i++ {
		frameSize, complete := parser.peekFrameSize()
		if !complete { return nil }

		frame := parser.buffer[:frameSize]

		magic := binary.LittleEndian.Uint16(frame[0:2])
		if magic != frameMagic {
			parser.errored = true
			return errors.Wrapf(ErrParser, "bad frame magic: %#x", magic)
		}

		flags := frame[2]
		verb := frame[3]
		metaSize := int(binary.LittleEndian.Uint16(frame[4:6]))
		payloadSize := int(binary.LittleEndian.Uint32(frame[6:10]))

		bodyEnd := frameHeaderSize + metaSize + payloadSize

		if flags & frameFlagChecksum != 0 {
			expected := binary.LittleEndian.Uint32(frame[bodyEnd : bodyEnd + 4])
			actual := crc32.Checksum(frame[:bodyEnd], crcTable)
			if expected != actual {
				parser.errored = true
				return errors.Wrapf(ErrParser, "frame checksum mismatch: expected %#x got %#x", expected, actual)
			}
		}

		metadata := utils.GetZero[MessageMetadata]()
		if metaSize > 0 {
			decoded, decErr := utils.DecodeBytesToStruct[MessageMetadata](frame[frameHeaderSize : frameHeaderSize + metaSize])
			if decErr != nil {
				parser.errored = true
				return errors.Wrap(ErrParser, decErr.Error())
			}

			metadata = *decoded
		}

		payload := make([]byte, payloadSize)
		copy(payload, frame[frameHeaderSize + metaSize : bodyEnd])

		parser.buffer = parser.buffer[frameSize:]

		if parser.messageObserver != nil { parser.messageObserver(verb, metadata, payload) }
	}

	return nil
}

/*
	encode an outbound frame, appending the crc trailer when per frame
	checksums are enabled
*/

func (parser *Parser) PrepareForSend(verb Verb, payload []byte, metadata MessageMetadata) ([]byte, error) {
	encodedMeta, encErr := utils.EncodeStructToBytes[MessageMetadata](metadata)
	if encErr != nil { return nil, encErr }

	frameSize := frameHeaderSize + len(encodedMeta) + len(payload)
	if parser.enableTxChecksum { frameSize += 4 }

	frame := make([]byte, frameSize)

	binary.LittleEndian.PutUint16(frame[0:2], frameMagic)
	if parser.enableTxChecksum { frame[2] = frameFlagChecksum }
	frame[3] = verb
	binary.LittleEndian.PutUint16(frame[4:6], uint16(len(encodedMeta)))
	binary.LittleEndian.PutUint32(frame[6:10], uint32(len(payload)))

	copy(frame[frameHeaderSize:], encodedMeta)
	copy(frame[frameHeaderSize + len(encodedMeta):], payload)

	if parser.enableTxChecksum {
		bodyEnd := frameHeaderSize + len(encodedMeta) + len(payload)
		binary.LittleEndian.PutUint32(frame[bodyEnd:], crc32.Checksum(frame[:bodyEnd], crcTable))
	}

	return frame, nil
}

/*
	total size of the first buffered frame and whether it is fully buffered
*/

func (parser *Parser) peekFrameSize() (int, bool) {
	if len(parser.buffer) < frameHeaderSize { return 0, false }

	flags := parser.buffer[2]
	metaSize := int(binary.LittleEndian.Uint16(parser.buffer[4:6]))
	payloadSize := int(binary.LittleEndian.Uint32(parser.buffer[6:10]))

	frameSize := frameHeaderSize + metaSize + payloadSize
	if flags & frameFlagChecksum != 0 { frameSize += 4 }

	if len(parser.buffer) < frameSize { return 0, false }
	return frameSize, true
}
