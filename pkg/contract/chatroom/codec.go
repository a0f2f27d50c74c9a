package chatroom

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ChatRoom mirrors the on-chain room record.
type ChatRoom struct {
	Id        *big.Int
	BookingId *big.Int
	User      common.Address
	MentorId  *big.Int
	IsActive  bool
	CreatedAt *big.Int
}

// MessageSent is a decoded MessageSent event.
type MessageSent struct {
	MessageId    *big.Int
	RoomId       *big.Int
	Sender       common.Address
	IsFromMentor bool
	TxHash       common.Hash
	LogIndex     uint
}

// Codec encodes calls to and decodes results from the chat store contract.
type Codec struct {
	abi abi.ABI
}

func NewCodec() (*Codec, error) {
	parsed, err := abi.JSON(strings.NewReader(ChatroomABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse chatroom ABI: %v", err)
	}
	return &Codec{abi: parsed}, nil
}

func MustNewCodec() *Codec {
	c, err := NewCodec()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Codec) ABI() abi.ABI {
	return c.abi
}

// Encode packs a call to `functionName` with `args`.
func (c *Codec) Encode(functionName string, args ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(functionName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %v", functionName, err)
	}
	return data, nil
}

// Decode unpacks the return data of `functionName`.
func (c *Codec) Decode(functionName string, returnData []byte) ([]interface{}, error) {
	values, err := c.abi.Unpack(functionName, returnData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %v", functionName, err)
	}
	return values, nil
}

func (c *Codec) PackSendMessage(roomID *big.Int, content string, fromPrivilegedSender bool) ([]byte, error) {
	return c.Encode(MethodSendMessage, roomID, content, fromPrivilegedSender)
}

func (c *Codec) UnpackChatRoom(returnData []byte) (ChatRoom, error) {
	out, err := c.Decode(MethodGetChatRoom, returnData)
	if err != nil {
		return ChatRoom{}, err
	}
	if len(out) != 1 {
		return ChatRoom{}, fmt.Errorf("unexpected number of outputs: %d", len(out))
	}
	room, ok := abi.ConvertType(out[0], new(ChatRoom)).(*ChatRoom)
	if !ok || room == nil {
		return ChatRoom{}, fmt.Errorf("unexpected output type: %T", out[0])
	}
	return *room, nil
}

func (c *Codec) UnpackUint256(functionName string, returnData []byte) (*big.Int, error) {
	out, err := c.Decode(functionName, returnData)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected output type: %T", out[0])
	}
	return v, nil
}

func (c *Codec) UnpackBool(functionName string, returnData []byte) (bool, error) {
	out, err := c.Decode(functionName, returnData)
	if err != nil {
		return false, err
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected output type: %T", out[0])
	}
	return v, nil
}

// Errors returns the custom errors declared by the contract.
func (c *Codec) Errors() []abi.Error {
	errs := make([]abi.Error, 0, len(c.abi.Errors))
	for _, e := range c.abi.Errors {
		errs = append(errs, e)
	}
	return errs
}

// ParseMessageSent extracts MessageSent events emitted by `contract` from receipt logs.
func (c *Codec) ParseMessageSent(contract common.Address, logs []*gethtypes.Log) ([]MessageSent, error) {
	ev := c.abi.Events[EventMessageSent]
	var events []MessageSent
	for i, log := range logs {
		if log == nil || log.Address != contract || len(log.Topics) == 0 || log.Topics[0] != ev.ID {
			continue
		}
		if len(log.Topics) != 3 {
			return nil, fmt.Errorf("unexpected topic count: logIndex=%d, topics=%d", i, len(log.Topics))
		}
		vals, err := ev.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse MessageSent event: logIndex=%d, err=%v", i, err)
		}
		sender, _ := vals[0].(common.Address)
		isFromMentor, _ := vals[1].(bool)
		events = append(events, MessageSent{
			MessageId:    new(big.Int).SetBytes(log.Topics[1].Bytes()),
			RoomId:       new(big.Int).SetBytes(log.Topics[2].Bytes()),
			Sender:       sender,
			IsFromMentor: isFromMentor,
			TxHash:       log.TxHash,
			LogIndex:     log.Index,
		})
	}
	return events, nil
}

// Caller runs read-only queries against the contract with eth_call. No signing is involved.
type Caller struct {
	address common.Address
	from    common.Address
	backend bind.ContractCaller
	codec   *Codec
}

func NewCaller(address common.Address, from common.Address, backend bind.ContractCaller, codec *Codec) *Caller {
	return &Caller{
		address: address,
		from:    from,
		backend: backend,
		codec:   codec,
	}
}

func (c *Caller) Address() common.Address {
	return c.address
}

func (c *Caller) Codec() *Codec {
	return c.codec
}

func (c *Caller) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := c.codec.Encode(method, args...)
	if err != nil {
		return nil, err
	}
	to := c.address
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}

func (c *Caller) ChatRoomCount(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, MethodGetChatRoomCount)
	if err != nil {
		return nil, err
	}
	return c.codec.UnpackUint256(MethodGetChatRoomCount, out)
}

func (c *Caller) MessageCount(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, MethodGetMessageCount)
	if err != nil {
		return nil, err
	}
	return c.codec.UnpackUint256(MethodGetMessageCount, out)
}

func (c *Caller) GetChatRoom(ctx context.Context, roomID *big.Int) (ChatRoom, error) {
	out, err := c.call(ctx, MethodGetChatRoom, roomID)
	if err != nil {
		return ChatRoom{}, err
	}
	return c.codec.UnpackChatRoom(out)
}

func (c *Caller) IsAuthorizedSender(ctx context.Context, roomID *big.Int, sender common.Address) (bool, error) {
	out, err := c.call(ctx, MethodIsAuthorizedSender, roomID, sender)
	if err != nil {
		return false, err
	}
	return c.codec.UnpackBool(MethodIsAuthorizedSender, out)
}

// HasCode reports whether a contract is deployed at the configured address.
func (c *Caller) HasCode(ctx context.Context) (bool, error) {
	code, err := c.backend.CodeAt(ctx, c.address, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}
