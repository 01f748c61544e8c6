package clock

import "time"

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/transport"
import "github.com/sirgallo/tso/pkg/utils"


//=========================================== Clock Sources


// raised when the time authority cannot be reached, the caller keeps its
// previous sync value rather than adjusting from stale data
var ErrClockUnavailable = errors.New("atomic/gps clock unavailable")

/*
	clock source backed by the atomic/gps clock service over the rpc
	transport
*/

func NewRemoteClockSource(protocol *transport.Protocol, endpoint transport.TxEndpoint, monotonic LocalClock, timeout time.Duration) *RemoteClockSource {
	return &RemoteClockSource{
		Protocol: protocol,
		Endpoint: endpoint,
		Monotonic: monotonic,
		Timeout: timeout,
	}
}

/*
	Check Atomic GPS Clock:
		1.) round trip GET_ATOMIC_CLOCK_TIME to the clock service
		2.) derive the difference between the authority's TAI reading and the
			local monotonic clock, sampled as close to the response as possible
*/

func (source *RemoteClockSource) CheckAtomicGPSClock() (TimeSyncReading, error) {
	response, callErr := source.Protocol.Call(transport.GET_ATOMIC_CLOCK_TIME, nil, source.Endpoint, source.Timeout)
	if callErr != nil { return utils.GetZero[TimeSyncReading](), errors.Wrap(ErrClockUnavailable, callErr.Error()) }

	if response.Metadata.Status != transport.StatusOK {
		return utils.GetZero[TimeSyncReading](), errors.Wrapf(ErrClockUnavailable, "clock service status: %s", response.Metadata.Status)
	}

	payload, decErr := utils.DecodeBytesToStruct[ClockTimePayload](response.Payload)
	if decErr != nil { return utils.GetZero[TimeSyncReading](), errors.Wrap(ErrClockUnavailable, decErr.Error()) }

	localNow := source.Monotonic.NowNanos()

	return TimeSyncReading{
		TaiMinusLocalNanos: payload.TaiNowNanos - localNow,
		UncertaintyNanos: payload.UncertaintyNanos,
	}, nil
}

/*
	fallback source that treats the local system wall clock as the time
	authority, used when no clock endpoint is configured
*/

func NewLocalClockSource(monotonic LocalClock, uncertaintyNanos uint64) *LocalClockSource {
	return &LocalClockSource{
		Monotonic: monotonic,
		UncertaintyNanos: uncertaintyNanos,
	}
}

func (source *LocalClockSource) CheckAtomicGPSClock() (TimeSyncReading, error) {
	taiNow := uint64(time.Now().UnixNano())
	localNow := source.Monotonic.NowNanos()

	return TimeSyncReading{
		TaiMinusLocalNanos: taiNow - localNow,
		UncertaintyNanos: source.UncertaintyNanos,
	}, nil
}

/*
	register the serving side of GET_ATOMIC_CLOCK_TIME on a protocol, the
	stand-in clock service answers with system time and a fixed uncertainty
*/

func RegisterClockService(protocol *transport.Protocol, uncertaintyNanos uint64) {
	protocol.RegisterVerbHandler(transport.GET_ATOMIC_CLOCK_TIME, transport.ACK_TIME, func(msg *transport.Message) ([]byte, transport.MessageMetadata) {
		payload, encErr := utils.EncodeStructToBytes[ClockTimePayload](ClockTimePayload{
			TaiNowNanos: uint64(time.Now().UnixNano()),
			UncertaintyNanos: uncertaintyNanos,
		})

		if encErr != nil {
			return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: encErr.Error() }
		}

		return payload, transport.MessageMetadata{ Status: transport.StatusOK }
	})
}
