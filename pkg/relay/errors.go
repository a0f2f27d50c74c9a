package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/bryanEnzee/skillance-relay/pkg/client"
	"github.com/bryanEnzee/skillance-relay/pkg/contract/chatroom"
)

const (
	ReasonInvalidRoomID   = "invalid room id"
	ReasonRoomNotFound    = "room not found or unreadable"
	ReasonRoomNotActive   = "room is not active"
	ReasonNotAuthorized   = "sender not authorized for this room"
	ReasonEmptyContent    = "empty content"
	reasonRevertedUnknown = "transaction would revert"
)

// RevertError is a simulated revert. The message is not submitted.
type RevertError struct {
	Reason string
	// Cause is the provider's error as received.
	Cause error
	Data  []byte
}

func (e *RevertError) Error() string {
	return e.Reason
}

func (e *RevertError) Unwrap() error {
	return e.Cause
}

// ErrorRepository indexes the contract's custom errors by their 4-byte selector.
type ErrorRepository map[[4]byte]abi.Error

func NewErrorRepository(errABIs []abi.Error) (ErrorRepository, error) {
	repo := make(ErrorRepository, len(errABIs))
	for _, errABI := range errABIs {
		if err := repo.Add(errABI); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// Add registers errABI. Re-adding the same signature is a no-op; a different
// signature behind the same selector is an error.
func (r ErrorRepository) Add(errABI abi.Error) error {
	sel := selectorOf(errABI.ID[:])
	if existing, ok := r[sel]; ok {
		if existing.Sig == errABI.Sig {
			return nil
		}
		return fmt.Errorf("error selector collision: selector=%x, new=%s, existing=%s", sel, errABI.Sig, existing.Sig)
	}
	r[sel] = errABI
	return nil
}

func (r ErrorRepository) lookup(errorData []byte) (abi.Error, error) {
	if len(errorData) < 4 {
		return abi.Error{}, fmt.Errorf("revert data shorter than a selector: %x", errorData)
	}
	errABI, ok := r[selectorOf(errorData)]
	if !ok {
		return abi.Error{}, fmt.Errorf("unknown error selector: %x", errorData[:4])
	}
	return errABI, nil
}

// ParseError renders revert data as the Error(string) message, or as Name{json args}
// for a registered custom error.
func (r ErrorRepository) ParseError(errorData []byte) (string, error) {
	if revertReason, err := abi.UnpackRevert(errorData); err == nil {
		return revertReason, nil
	}

	errABI, err := r.lookup(errorData)
	if err != nil {
		return "", err
	}
	args := make(map[string]interface{}, len(errABI.Inputs))
	if err := errABI.Inputs.UnpackIntoMap(args, errorData[4:]); err != nil {
		return "", fmt.Errorf("failed to unpack %s: %w", errABI.Name, err)
	}
	bz, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s args: %w", errABI.Name, err)
	}
	return errABI.Name + string(bz), nil
}

func selectorOf(bz []byte) [4]byte {
	var sel [4]byte
	copy(sel[:], bz[:4])
	return sel
}

// customErrorReasons maps the contract's custom errors to the relay's reasons.
var customErrorReasons = map[string]string{
	chatroom.ErrorRoomNotFound:  ReasonRoomNotFound,
	chatroom.ErrorRoomNotActive: ReasonRoomNotActive,
	chatroom.ErrorNotAuthorized: ReasonNotAuthorized,
	chatroom.ErrorEmptyMessage:  ReasonEmptyContent,
}

// revertTextReasons is consulted only when no structured revert data is available.
// Order matters: the first match wins.
var revertTextReasons = []struct {
	needle string
	reason string
}{
	{"not authorized", ReasonNotAuthorized},
	{"unauthorized", ReasonNotAuthorized},
	{"not active", ReasonRoomNotActive},
	{"inactive", ReasonRoomNotActive},
	{"room not found", ReasonRoomNotFound},
	{"does not exist", ReasonRoomNotFound},
	{"empty", ReasonEmptyContent},
}

type RevertClassifier struct {
	repo ErrorRepository
}

func NewRevertClassifier(errABIs []abi.Error) (*RevertClassifier, error) {
	repo, err := NewErrorRepository(errABIs)
	if err != nil {
		return nil, err
	}
	return &RevertClassifier{repo: repo}, nil
}

// ParseRevertData decodes raw revert data (from a receipt or a call).
func (c *RevertClassifier) ParseRevertData(data []byte) (string, error) {
	return c.repo.ParseError(data)
}

// Classify decides whether err from eth_estimateGas means the call reverts and, if so, why.
// Structured revert data wins; the provider's text is matched only as a last resort.
func (c *RevertClassifier) Classify(err error) (*RevertError, bool) {
	if err == nil {
		return nil, false
	}

	var data []byte
	message := err.Error()
	code := 0
	if rpcErr, ok := client.RPCErrorOf(err); ok {
		message = rpcErr.Message
		code = rpcErr.Code
		if s, ok := rpcErr.Data.(string); ok {
			data = common.FromHex(s)
		}
	}

	if len(data) >= 4 {
		if errABI, lerr := c.repo.lookup(data); lerr == nil {
			if reason, ok := customErrorReasons[errABI.Name]; ok {
				return &RevertError{Reason: reason, Cause: err, Data: data}, true
			}
		}
		if parsed, perr := c.repo.ParseError(data); perr == nil {
			return &RevertError{Reason: matchRevertText(parsed), Cause: err, Data: data}, true
		}
	}

	// geth reports reverts with code 3, other nodes only say so in the message
	lower := strings.ToLower(message)
	if code == 3 || strings.Contains(lower, "revert") {
		return &RevertError{Reason: matchRevertText(message), Cause: err, Data: data}, true
	}
	return nil, false
}

func matchRevertText(text string) string {
	lower := strings.ToLower(text)
	for _, r := range revertTextReasons {
		if strings.Contains(lower, r.needle) {
			return r.reason
		}
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, "execution reverted"))
	text = strings.TrimSpace(strings.TrimPrefix(text, ":"))
	if text == "" {
		return reasonRevertedUnknown
	}
	return reasonRevertedUnknown + ": " + text
}

// IsRevert reports whether err is a classified revert.
func IsRevert(err error) bool {
	var revertErr *RevertError
	return errors.As(err, &revertErr)
}
