package contracts

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"fyBorrow/internal/chain"
	"fyBorrow/internal/model"
)

type fakePreviewer struct {
	responses map[string][]byte
	calls     []chain.Call
}

func (f *fakePreviewer) Preview(_ context.Context, call chain.Call) ([]byte, error) {
	f.calls = append(f.calls, call)
	resp, ok := f.responses[string(call.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return resp, nil
}

func packOutputs(t *testing.T, parsed abi.ABI, method string, values ...interface{}) (string, []byte) {
	t.Helper()
	m := parsed.Methods[method]
	data, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	return string(m.ID), data
}

func TestPoolReaderReadState(t *testing.T) {
	parsed, err := PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	fake := &fakePreviewer{responses: map[string][]byte{}}
	for _, entry := range []struct {
		method string
		values []interface{}
	}{
		{"getBaseBalance", []interface{}{big.NewInt(1_000_000)}},
		{"getFYTokenBalance", []interface{}{big.NewInt(1_200_000)}},
		{"getCache", []interface{}{big.NewInt(1_000_000), big.NewInt(1_150_000), uint32(1700000000), uint16(9500)}},
	} {
		id, data := packOutputs(t, parsed, entry.method, entry.values...)
		fake.responses[id] = data
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	state, err := NewPoolReader(fake, pool).ReadState(context.Background())
	if err != nil {
		t.Fatalf("read state: %v", err)
	}

	if state.BaseReserveLive.Uint64() != 1_000_000 || state.FYReserveLive.Uint64() != 1_200_000 {
		t.Fatalf("live reserves mismatch: %+v", state)
	}
	if state.PendingFY.Uint64() != 50_000 || !state.PendingBase.IsZero() {
		t.Fatalf("pending mismatch: base=%s fy=%s", state.PendingBase, state.PendingFY)
	}
	if state.Consistency() != model.ConsistencyPending {
		t.Fatalf("consistency mismatch: %s", state.Consistency())
	}
	for _, call := range fake.calls {
		if call.To != pool {
			t.Fatalf("call sent to %s", call.To.Hex())
		}
	}
}

func TestPoolReaderPropagatesFailure(t *testing.T) {
	fake := &fakePreviewer{responses: map[string][]byte{}}
	if _, err := NewPoolReader(fake, common.Address{}).ReadState(context.Background()); err == nil {
		t.Fatalf("expected error when pool calls fail")
	}
}

func TestPoolReaderFYToken(t *testing.T) {
	parsed, err := PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	fyToken := common.HexToAddress("0x5555555555555555555555555555555555555555")
	id, data := packOutputs(t, parsed, "fyToken", fyToken)
	fake := &fakePreviewer{responses: map[string][]byte{id: data}}

	got, err := NewPoolReader(fake, common.HexToAddress("0x1111111111111111111111111111111111111111")).FYToken(context.Background())
	if err != nil {
		t.Fatalf("fyToken: %v", err)
	}
	if got != fyToken {
		t.Fatalf("fyToken mismatch: %s", got.Hex())
	}
}

func TestTransferCall(t *testing.T) {
	token := common.HexToAddress("0x5555555555555555555555555555555555555555")
	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	call, err := TransferCall(token, pool, big.NewInt(777))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if call.To != token || call.Label != "erc20.transfer" {
		t.Fatalf("call mismatch: to=%s label=%s", call.To.Hex(), call.Label)
	}

	parsed, _ := ERC20ABI()
	args, err := parsed.Methods["transfer"].Inputs.Unpack(call.Data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(common.Address) != pool || args[1].(*big.Int).Int64() != 777 {
		t.Fatalf("args mismatch: %v", args)
	}
}

func TestSellFYTokenPreviewRoundTrip(t *testing.T) {
	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	call, err := SellFYTokenPreviewCall(pool, big.NewInt(12345))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if call.Label != "pool.sellFYTokenPreview" {
		t.Fatalf("label mismatch: %s", call.Label)
	}

	parsed, _ := PoolABI()
	_, data := packOutputs(t, parsed, "sellFYTokenPreview", big.NewInt(11111))
	out, err := UnpackSellFYTokenPreview(data)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if out.Int64() != 11111 {
		t.Fatalf("output mismatch: %s", out)
	}
}

func TestDecodePositionBuilt(t *testing.T) {
	parsed, err := HelperABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := parsed.Events["PositionBuilt"]

	id := PositionID{0xaa, 0xbb, 0xcc, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	owner := common.HexToAddress("0x2222222222222222222222222222222222222222")
	series := [6]byte{0x30, 0x31, 0x30, 0x35, 0, 1}
	ilk := [6]byte{0x30, 0x31, 0, 0, 0, 0}

	data, err := event.Inputs.NonIndexed().Pack(ilk)
	if err != nil {
		t.Fatalf("pack ilk: %v", err)
	}
	var idTopic, seriesTopic common.Hash
	copy(idTopic[:], id[:])
	copy(seriesTopic[:], series[:])

	log := types.Log{
		Topics:      []common.Hash{event.ID, idTopic, common.BytesToHash(owner.Bytes()), seriesTopic},
		Data:        data,
		BlockNumber: 42,
	}

	built, err := DecodePositionBuilt(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if built.PositionID != id || built.Owner != owner || built.SeriesID != series || built.IlkID != ilk {
		t.Fatalf("decoded mismatch: %+v", built)
	}

	other := log
	other.Topics = []common.Hash{event.ID, idTopic, common.BytesToHash(common.HexToAddress("0x3333333333333333333333333333333333333333").Bytes()), seriesTopic}
	found, ok := FindPositionBuilt([]types.Log{log, other}, owner, series, ilk)
	if !ok || found.PositionID != id {
		t.Fatalf("find mismatch: %+v %v", found, ok)
	}
	if _, ok := FindPositionBuilt([]types.Log{other}, owner, series, ilk); ok {
		t.Fatalf("expected no match for other owner")
	}
}

func TestTokenReaderMetaCached(t *testing.T) {
	parsed, _ := ERC20ABI()
	fake := &fakePreviewer{responses: map[string][]byte{}}
	id, data := packOutputs(t, parsed, "decimals", uint8(6))
	fake.responses[id] = data
	id, data = packOutputs(t, parsed, "symbol", "USDC")
	fake.responses[id] = data

	reader := NewTokenReader(fake, nil, nil)
	token := common.HexToAddress("0x4444444444444444444444444444444444444444")
	meta, err := reader.Meta(context.Background(), token)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Decimals != 6 || meta.Symbol != "USDC" {
		t.Fatalf("meta mismatch: %+v", meta)
	}

	calls := len(fake.calls)
	if _, err := reader.Meta(context.Background(), token); err != nil {
		t.Fatalf("cached meta: %v", err)
	}
	if len(fake.calls) != calls {
		t.Fatalf("expected cached metadata, got %d extra calls", len(fake.calls)-calls)
	}
}
