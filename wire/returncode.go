package wire

import "strconv"

// ReturnCode classifies the outcome of every Forward/Backward call.
//
// The numbering is part of the wire contract and must never be reordered.
type ReturnCode int32

const (
	Success                          ReturnCode = 0
	Timeout                          ReturnCode = 1
	Backoff                          ReturnCode = 2
	Unavailable                      ReturnCode = 3
	NotImplemented                   ReturnCode = 4
	EmptyRequest                     ReturnCode = 5
	EmptyResponse                    ReturnCode = 6
	InvalidResponse                  ReturnCode = 7
	InvalidRequest                   ReturnCode = 8
	RequestShapeException            ReturnCode = 9
	ResponseShapeException           ReturnCode = 10
	RequestSerializationException    ReturnCode = 11
	ResponseSerializationException   ReturnCode = 12
	RequestDeserializationException  ReturnCode = 13
	ResponseDeserializationException ReturnCode = 14
	NotServingSynapse                ReturnCode = 15
	NucleusTimeout                   ReturnCode = 16
	NucleusFull                      ReturnCode = 17
	RequestIncompatibleVersion       ReturnCode = 18
	ResponseIncompatibleVersion      ReturnCode = 19
	SenderUnknown                    ReturnCode = 20
	UnknownException                 ReturnCode = 21
)

var returnCodeNames = [...]string{
	Success:                          "Success",
	Timeout:                          "Timeout",
	Backoff:                          "Backoff",
	Unavailable:                      "Unavailable",
	NotImplemented:                   "NotImplemented",
	EmptyRequest:                     "EmptyRequest",
	EmptyResponse:                    "EmptyResponse",
	InvalidResponse:                  "InvalidResponse",
	InvalidRequest:                   "InvalidRequest",
	RequestShapeException:            "RequestShapeException",
	ResponseShapeException:           "ResponseShapeException",
	RequestSerializationException:    "RequestSerializationException",
	ResponseSerializationException:   "ResponseSerializationException",
	RequestDeserializationException:  "RequestDeserializationException",
	ResponseDeserializationException: "ResponseDeserializationException",
	NotServingSynapse:                "NotServingSynapse",
	NucleusTimeout:                   "NucleusTimeout",
	NucleusFull:                      "NucleusFull",
	RequestIncompatibleVersion:       "RequestIncompatibleVersion",
	ResponseIncompatibleVersion:      "ResponseIncompatibleVersion",
	SenderUnknown:                    "SenderUnknown",
	UnknownException:                 "UnknownException",
}

// ReturnCodes lists every defined code in wire order.
func ReturnCodes() []ReturnCode {
	out := make([]ReturnCode, 0, len(returnCodeNames))
	for i := range returnCodeNames {
		out = append(out, ReturnCode(i))
	}
	return out
}

func (c ReturnCode) String() string {
	if c.Valid() {
		return returnCodeNames[c]
	}
	return "ReturnCode(" + strconv.Itoa(int(c)) + ")"
}

// Valid reports whether c is one of the defined codes. Peers running a newer
// schema may send values this build does not know.
func (c ReturnCode) Valid() bool { return c >= 0 && int(c) < len(returnCodeNames) }

// Class is the retry category of a ReturnCode.
type Class uint8

const (
	ClassSuccess Class = iota
	// ClassTransient codes may succeed if retried later with backoff.
	ClassTransient
	// ClassPermanent codes require the request to change before a retry.
	ClassPermanent
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

func (c ReturnCode) Class() Class {
	switch c {
	case Success:
		return ClassSuccess
	case Timeout, Backoff, Unavailable, NucleusTimeout, NucleusFull:
		return ClassTransient
	case NotImplemented, EmptyRequest, EmptyResponse, InvalidResponse, InvalidRequest,
		RequestShapeException, ResponseShapeException,
		RequestSerializationException, ResponseSerializationException,
		RequestDeserializationException, ResponseDeserializationException,
		NotServingSynapse, RequestIncompatibleVersion, ResponseIncompatibleVersion,
		SenderUnknown:
		return ClassPermanent
	default:
		return ClassUnknown
	}
}

// Retryable reports whether a caller may retry the unmodified request.
func (c ReturnCode) Retryable() bool { return c.Class() == ClassTransient }

// Direction tells directional checks which side of a call they run on.
type Direction uint8

const (
	// Request covers work on an outbound request (client encode, server decode).
	Request Direction = iota
	// Response covers work on a reply (server encode, client decode).
	Response
)

func (d Direction) String() string {
	if d == Response {
		return "response"
	}
	return "request"
}

func (d Direction) pick(req, resp ReturnCode) ReturnCode {
	if d == Response {
		return resp
	}
	return req
}

func (d Direction) ShapeCode() ReturnCode {
	return d.pick(RequestShapeException, ResponseShapeException)
}

func (d Direction) SerializationCode() ReturnCode {
	return d.pick(RequestSerializationException, ResponseSerializationException)
}

func (d Direction) DeserializationCode() ReturnCode {
	return d.pick(RequestDeserializationException, ResponseDeserializationException)
}

func (d Direction) VersionCode() ReturnCode {
	return d.pick(RequestIncompatibleVersion, ResponseIncompatibleVersion)
}

func (d Direction) EmptyCode() ReturnCode {
	return d.pick(EmptyRequest, EmptyResponse)
}

func (d Direction) InvalidCode() ReturnCode {
	return d.pick(InvalidRequest, InvalidResponse)
}
