package transport

import "strings"

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/utils"


//=========================================== TX Endpoint


// wire protocol names accepted in endpoint urls
const RRDMAProto = "rrdma"
const TCPK2RPCProto = "tcp+k2rpc"

/*
	an endpoint identifies one remote peer, equality is proto + host + port

	url grammar is "<proto>+<host>:<port>". the proto itself may contain a
	"+" (tcp+k2rpc), so the last "+" separates proto from address.
*/

type TxEndpoint struct {
	Proto string
	Host string
	Port string
}

func ParseEndpoint(url string) (TxEndpoint, error) {
	idx := strings.LastIndex(url, "+")
	if idx == -1 { return utils.GetZero[TxEndpoint](), errors.Newf("endpoint url missing proto separator: %s", url) }

	proto := url[:idx]
	if proto != RRDMAProto && proto != TCPK2RPCProto {
		return utils.GetZero[TxEndpoint](), errors.Newf("unsupported endpoint proto: %s", proto)
	}

	host, port := utils.SplitHostPort(url[idx + 1:])
	if host == "" || port == "" { return utils.GetZero[TxEndpoint](), errors.Newf("endpoint url missing host or port: %s", url) }

	return TxEndpoint{
		Proto: proto,
		Host: host,
		Port: port,
	}, nil
}

// canonical url form, used as the key in the protocol channel map
func (endpoint TxEndpoint) URL() string {
	return endpoint.Proto + "+" + endpoint.Host + ":" + endpoint.Port
}

func (endpoint TxEndpoint) Address() string {
	return endpoint.Host + ":" + endpoint.Port
}
