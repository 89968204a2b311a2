package revert

import (
	"bytes"
	"regexp"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"fyBorrow/internal/contracts"
)

var (
	hexBlobPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)

	errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector       = []byte{0x4e, 0x48, 0x7b, 0x71}
)

type schema struct {
	source  Source
	address common.Address
	abi     abi.ABI
}

// Classifier turns opaque failures from remote calls into a Classification.
type Classifier struct {
	// schemas are tried in order; the pool comes first.
	schemas []schema
	builtin map[string]abi.Arguments
}

// NewClassifier builds a classifier for the given pool and helper contracts.
func NewClassifier(pool, helper common.Address) (*Classifier, error) {
	poolABI, err := contracts.PoolABI()
	if err != nil {
		return nil, err
	}
	helperABI, err := contracts.HelperABI()
	if err != nil {
		return nil, err
	}

	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, err
	}
	uintType, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		schemas: []schema{
			{source: SourcePool, address: pool, abi: poolABI},
			{source: SourceHelper, address: helper, abi: helperABI},
		},
		builtin: map[string]abi.Arguments{
			errNameString: {{Type: stringType}},
			errNamePanic:  {{Type: uintType}},
		},
	}, nil
}

// Classify never fails: whatever cannot be recovered is reported as unknown.
func (c *Classifier) Classify(err error) Classification {
	if c == nil || err == nil {
		return unknown()
	}

	found := extract(err)
	if found.data != nil {
		return c.decodePayload(found.data, c.schemas)
	}
	for _, msg := range found.messages {
		if cl, ok := c.fromMessage(msg); ok {
			return cl
		}
	}
	return unknown()
}

// Hint returns the typed hint for err, or nil when the failure is not one the
// user can act on specifically.
func (c *Classifier) Hint(err error) *Hint {
	return c.Classify(err).Hint
}

func (c *Classifier) decodePayload(data []byte, order []schema) Classification {
	selector := data[:4]
	cl := unknown()
	cl.Selector = hexutil.Encode(selector)

	for _, s := range order {
		e, err := s.abi.ErrorByID([4]byte(selector))
		if err != nil {
			continue
		}
		args, err := e.Inputs.Unpack(data[4:])
		if err != nil {
			continue
		}
		cl.MatchedAgainst = s.source
		cl.ErrorName = e.Name
		cl.Args = args
		return promoteHint(cl)
	}

	switch {
	case bytes.Equal(selector, errorStringSelector):
		if args, err := c.builtin[errNameString].Unpack(data[4:]); err == nil {
			cl.ErrorName = errNameString
			cl.Args = args
		}
	case bytes.Equal(selector, panicSelector):
		if args, err := c.builtin[errNamePanic].Unpack(data[4:]); err == nil {
			cl.ErrorName = errNamePanic
			cl.Args = args
		}
	}
	return cl
}

// fromMessage handles transports that only deliver text. A hex blob of 8 digits
// (optionally followed by 32-byte words) is a candidate payload; a 40-digit
// blob is a contract address used to pick the schema. Other hex in the text,
// such as block numbers, can look like a payload, so the first candidate whose
// selector is known wins and the first candidate is only a fallback.
func (c *Classifier) fromMessage(msg string) (Classification, bool) {
	var candidates [][]byte
	var addresses []common.Address
	for _, blob := range hexBlobPattern.FindAllString(msg, -1) {
		digits := len(blob) - 2
		switch {
		case digits == 2*common.AddressLength:
			addresses = append(addresses, common.HexToAddress(blob))
		case digits >= 8 && (digits-8)%64 == 0:
			if data, err := hexutil.Decode(blob); err == nil {
				candidates = append(candidates, data)
			}
		}
	}
	if len(candidates) == 0 {
		return Classification{}, false
	}

	order, source := c.schemasFor(addresses)
	data := candidates[0]
	for _, candidate := range candidates {
		if c.knownSelector(candidate[:4], order) {
			data = candidate
			break
		}
	}

	if len(data) > 4 {
		cl := c.decodePayload(data, order)
		if cl.MatchedAgainst == SourceUnknown && source != SourceUnknown {
			cl.MatchedAgainst = source
		}
		return cl, true
	}

	cl := unknown()
	cl.Selector = hexutil.Encode(data)
	cl.MatchedAgainst = source
	for _, s := range order {
		if e, err := s.abi.ErrorByID([4]byte(data)); err == nil {
			cl.MatchedAgainst = s.source
			cl.ErrorName = e.Name
			break
		}
	}
	return promoteHint(cl), true
}

func (c *Classifier) knownSelector(selector []byte, order []schema) bool {
	if bytes.Equal(selector, errorStringSelector) || bytes.Equal(selector, panicSelector) {
		return true
	}
	for _, s := range order {
		if _, err := s.abi.ErrorByID([4]byte(selector)); err == nil {
			return true
		}
	}
	return false
}

// schemasFor restricts decoding to the schema whose contract address appears
// in the message; without a known address every schema is tried in priority order.
func (c *Classifier) schemasFor(addresses []common.Address) ([]schema, Source) {
	for _, addr := range addresses {
		for _, s := range c.schemas {
			if s.address != (common.Address{}) && s.address == addr {
				return []schema{s}, s.source
			}
		}
	}
	return c.schemas, SourceUnknown
}
