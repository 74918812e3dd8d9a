// Package wire provides a minimal, non-dictionary-driven tag=value
// codec for FIX messages: enough to encode and decode the header
// fields and administrative fields internal/session depends on
// (spec.md §6), so the session engine can be exercised end-to-end in
// tests and the reference daemon without a full data-dictionary engine.
//
// It does not validate field presence against a dictionary, does not
// support repeating groups, and passes application Body bytes through
// untouched between the trailing header tag and the checksum. A
// production deployment would swap this for a dictionary-driven codec;
// internal/session never imports this package directly, only the
// session.Codec interface it satisfies.
package wire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nextfix-go/nextfix/internal/session"
)

const soh = '\x01'

// Tag numbers the codec reads and writes (spec.md §6).
const (
	tagBeginSeqNo             = 7
	tagBeginString            = 8
	tagBodyLength             = 9
	tagCheckSum               = 10
	tagEndSeqNo               = 16
	tagMsgSeqNum              = 34
	tagMsgType                = 35
	tagNewSeqNo               = 36
	tagPossDupFlag            = 43
	tagSenderCompID           = 49
	tagSenderSubID            = 50
	tagSendingTime            = 52
	tagTargetCompID           = 56
	tagTargetSubID            = 57
	tagText                   = 58
	tagEncryptMethod          = 98
	tagHeartBtInt             = 108
	tagTestReqID              = 112
	tagOrigSendingTime        = 122
	tagGapFillFlag            = 123
	tagResetSeqNumFlag        = 141
	tagSenderLocationID       = 142
	tagTargetLocationID       = 143
	tagLastMsgSeqNumProcessed = 369
	tagRefTagID               = 371
	tagRefMsgType             = 372
	tagSessionRejectReason    = 373
	tagBusinessRejectReason   = 380
	tagNextExpectedMsgSeqNum  = 789
)

const timestampLayout = "20060102-15:04:05"
const timestampLayoutMillis = "20060102-15:04:05.000"

// Codec implements session.Codec against SOH tag=value wire format.
type Codec struct{}

var _ session.Codec = Codec{}

// Encode renders msg as SOH-delimited tag=value bytes, computing
// BodyLength (9) and CheckSum (10) per the FIX framing rules.
func (Codec) Encode(msg session.Message) ([]byte, error) {
	var body bytes.Buffer

	writeTag(&body, tagMsgType, msg.Header.MsgType)
	writeTag(&body, tagSenderCompID, msg.Header.SenderCompID)
	if msg.Header.SenderSubID != "" {
		writeTag(&body, tagSenderSubID, msg.Header.SenderSubID)
	}
	if msg.Header.SenderLocationID != "" {
		writeTag(&body, tagSenderLocationID, msg.Header.SenderLocationID)
	}
	writeTag(&body, tagTargetCompID, msg.Header.TargetCompID)
	if msg.Header.TargetSubID != "" {
		writeTag(&body, tagTargetSubID, msg.Header.TargetSubID)
	}
	if msg.Header.TargetLocationID != "" {
		writeTag(&body, tagTargetLocationID, msg.Header.TargetLocationID)
	}
	writeTag(&body, tagMsgSeqNum, strconv.Itoa(msg.Header.MsgSeqNum))
	if msg.Header.PossDupFlag {
		writeTag(&body, tagPossDupFlag, "Y")
	}
	writeTag(&body, tagSendingTime, formatTime(msg.Header.SendingTime, false))
	if !msg.Header.OrigSendingTime.IsZero() {
		writeTag(&body, tagOrigSendingTime, formatTime(msg.Header.OrigSendingTime, false))
	}
	if msg.Header.HasLastMsgSeqNumProc {
		writeTag(&body, tagLastMsgSeqNumProcessed, strconv.Itoa(msg.Header.LastMsgSeqNumProcessed))
	}
	if msg.Header.HasNextExpectedMsgSeq {
		writeTag(&body, tagNextExpectedMsgSeqNum, strconv.Itoa(msg.Header.NextExpectedMsgSeqNum))
	}

	writeAdminFields(&body, msg)

	body.Write(msg.Body)

	header := fmt.Sprintf("%d=%s%c%d=%d%c", tagBeginString, msg.Header.BeginString, soh, tagBodyLength, body.Len(), soh)

	var out bytes.Buffer
	out.WriteString(header)
	out.Write(body.Bytes())

	checksum := 0
	for _, b := range out.Bytes() {
		checksum += int(b)
	}
	fmt.Fprintf(&out, "%d=%03d%c", tagCheckSum, checksum%256, soh)

	return out.Bytes(), nil
}

func writeAdminFields(body *bytes.Buffer, msg session.Message) {
	f := msg.Fields
	switch msg.Header.MsgType {
	case session.MsgTypeLogon:
		writeTag(body, tagEncryptMethod, strconv.Itoa(f.EncryptMethod))
		writeTag(body, tagHeartBtInt, strconv.Itoa(f.HeartBtInt))
		if f.ResetSeqNumFlag {
			writeTag(body, tagResetSeqNumFlag, "Y")
		}
	case session.MsgTypeTestRequest:
		writeTag(body, tagTestReqID, f.TestReqID)
	case session.MsgTypeResendRequest:
		writeTag(body, tagBeginSeqNo, strconv.Itoa(f.BeginSeqNo))
		writeTag(body, tagEndSeqNo, strconv.Itoa(f.EndSeqNo))
	case session.MsgTypeSequenceReset:
		if f.GapFillFlag {
			writeTag(body, tagGapFillFlag, "Y")
		}
		writeTag(body, tagNewSeqNo, strconv.Itoa(f.NewSeqNo))
	case session.MsgTypeReject:
		if f.HasRefTagID {
			writeTag(body, tagRefTagID, strconv.Itoa(f.RefTagID))
		}
		if f.RefMsgType != "" {
			writeTag(body, tagRefMsgType, f.RefMsgType)
		}
		if f.HasSessionRejectRsn {
			writeTag(body, tagSessionRejectReason, strconv.Itoa(int(f.SessionRejectReason)))
		}
		if f.Text != "" {
			writeTag(body, tagText, f.Text)
		}
	case session.MsgTypeLogout:
		if f.Text != "" {
			writeTag(body, tagText, f.Text)
		}
	case session.MsgTypeBusinessMessageReject:
		if f.RefMsgType != "" {
			writeTag(body, tagRefMsgType, f.RefMsgType)
		}
		if f.HasBusinessRejectReason {
			writeTag(body, tagBusinessRejectReason, strconv.Itoa(int(f.BusinessRejectReason)))
		}
		if f.Text != "" {
			writeTag(body, tagText, f.Text)
		}
	}
}

func writeTag(b *bytes.Buffer, tag int, value string) {
	fmt.Fprintf(b, "%d=%s%c", tag, value, soh)
}

func formatTime(t time.Time, millis bool) string {
	if millis {
		return t.UTC().Format(timestampLayoutMillis)
	}
	return t.UTC().Format(timestampLayout)
}

// Decode parses SOH tag=value bytes into a Message. It does not verify
// the checksum or body length against a data dictionary; it assumes
// raw was framed correctly by the transport.
func (Codec) Decode(raw []byte) (session.Message, error) {
	var msg session.Message
	var body bytes.Buffer

	fields := bytes.Split(raw, []byte{soh})
	for _, field := range fields {
		if len(field) == 0 {
			continue
		}
		parts := bytes.SplitN(field, []byte{'='}, 2)
		if len(parts) != 2 {
			continue
		}
		tag, err := strconv.Atoi(string(parts[0]))
		if err != nil {
			continue
		}
		value := string(parts[1])

		switch tag {
		case tagBeginString:
			msg.Header.BeginString = value
		case tagMsgType:
			msg.Header.MsgType = value
		case tagMsgSeqNum:
			msg.Header.MsgSeqNum = atoi(value)
		case tagSenderCompID:
			msg.Header.SenderCompID = value
		case tagSenderSubID:
			msg.Header.SenderSubID = value
		case tagSenderLocationID:
			msg.Header.SenderLocationID = value
		case tagTargetCompID:
			msg.Header.TargetCompID = value
		case tagTargetSubID:
			msg.Header.TargetSubID = value
		case tagTargetLocationID:
			msg.Header.TargetLocationID = value
		case tagSendingTime:
			msg.Header.SendingTime = parseTime(value)
		case tagOrigSendingTime:
			msg.Header.OrigSendingTime = parseTime(value)
		case tagPossDupFlag:
			msg.Header.PossDupFlag = value == "Y"
		case tagLastMsgSeqNumProcessed:
			msg.Header.LastMsgSeqNumProcessed = atoi(value)
			msg.Header.HasLastMsgSeqNumProc = true
		case tagNextExpectedMsgSeqNum:
			msg.Header.NextExpectedMsgSeqNum = atoi(value)
			msg.Header.HasNextExpectedMsgSeq = true
		case tagEncryptMethod:
			msg.Fields.EncryptMethod = atoi(value)
		case tagHeartBtInt:
			msg.Fields.HeartBtInt = atoi(value)
		case tagResetSeqNumFlag:
			msg.Fields.ResetSeqNumFlag = value == "Y"
		case tagTestReqID:
			msg.Fields.TestReqID = value
		case tagBeginSeqNo:
			msg.Fields.BeginSeqNo = atoi(value)
		case tagEndSeqNo:
			msg.Fields.EndSeqNo = atoi(value)
		case tagNewSeqNo:
			msg.Fields.NewSeqNo = atoi(value)
		case tagGapFillFlag:
			msg.Fields.GapFillFlag = value == "Y"
		case tagText:
			msg.Fields.Text = value
		case tagRefTagID:
			msg.Fields.RefTagID = atoi(value)
			msg.Fields.HasRefTagID = true
		case tagRefMsgType:
			msg.Fields.RefMsgType = value
		case tagSessionRejectReason:
			msg.Fields.SessionRejectReason = session.SessionRejectReason(atoi(value))
			msg.Fields.HasSessionRejectRsn = true
		case tagBusinessRejectReason:
			msg.Fields.BusinessRejectReason = session.BusinessRejectReason(atoi(value))
			msg.Fields.HasBusinessRejectReason = true
		case tagBodyLength, tagCheckSum:
			// framing fields, not part of the logical message
		default:
			// Unknown tag: not part of the header/admin fields this
			// codec understands, so it passes through to Body
			// verbatim. A dictionary-driven codec would validate or
			// route these instead of treating them opaquely.
			body.Write(field)
			body.WriteByte(soh)
		}
	}

	msg.Body = body.Bytes()

	if msg.Header.MsgType == "" {
		return msg, fmt.Errorf("wire: missing MsgType (35)")
	}

	return msg, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseTime(s string) time.Time {
	if t, err := time.ParseInLocation(timestampLayoutMillis, s, time.UTC); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(timestampLayout, s, time.UTC); err == nil {
		return t
	}
	return time.Time{}
}
