// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ec

// ProtocolVersion is the EC dialect spoken here, the two-step salted
// login introduced with amule 2.2.
const ProtocolVersion uint16 = 0x0204

// PartSize is the fixed ED2K part length in bytes. Gap and request
// buffers address file ranges, part status buffers address parts.
const PartSize uint64 = 9728000

// Frame flags.
const (
	flagZlib        uint32 = 0x01
	flagUTF8Numbers uint32 = 0x02
	flagHasID       uint32 = 0x04
	flagAccepts     uint32 = 0x10
	flagBase        uint32 = 0x20

	knownFlags = flagZlib | flagUTF8Numbers | flagHasID | flagAccepts | flagBase
)

// Opcodes.
const (
	OpNoop                 uint8 = 0x01
	OpAuthReq              uint8 = 0x02
	OpAuthFail             uint8 = 0x03
	OpAuthOK               uint8 = 0x04
	OpFailed               uint8 = 0x05
	OpStrings              uint8 = 0x06
	OpMiscData             uint8 = 0x07
	OpShutdown             uint8 = 0x08
	OpAddLink              uint8 = 0x09
	OpStatReq              uint8 = 0x0A
	OpGetConnState         uint8 = 0x0B
	OpStats                uint8 = 0x0C
	OpGetDownloadQueue     uint8 = 0x0D
	OpDownloadQueue        uint8 = 0x0E
	OpGetUploadQueue       uint8 = 0x0F
	OpUploadQueue          uint8 = 0x10
	OpGetSharedFiles       uint8 = 0x11
	OpSharedFiles          uint8 = 0x12
	OpSharedFilesReload    uint8 = 0x13
	OpRenameFile           uint8 = 0x14
	OpSearchStart          uint8 = 0x15
	OpSearchStop           uint8 = 0x16
	OpSearchResults        uint8 = 0x17
	OpSearchProgress       uint8 = 0x18
	OpDownloadSearchResult uint8 = 0x19
	OpGetServerList        uint8 = 0x1A
	OpServerList           uint8 = 0x1B
	OpServerDisconnect     uint8 = 0x1C
	OpServerConnect        uint8 = 0x1D
	OpServerRemove         uint8 = 0x1E
	OpServerAdd            uint8 = 0x1F
	OpServerUpdateFromURL  uint8 = 0x20
	OpGetLog               uint8 = 0x21
	OpLog                  uint8 = 0x22
	OpResetLog             uint8 = 0x23
	OpGetServerInfo        uint8 = 0x24
	OpServerInfo           uint8 = 0x25
	OpGetPreferences       uint8 = 0x26
	OpSetPreferences       uint8 = 0x27
	OpCreateCategory       uint8 = 0x28
	OpUpdateCategory       uint8 = 0x29
	OpDeleteCategory       uint8 = 0x2A
	OpGetStatsTree         uint8 = 0x2B
	OpStatsTree            uint8 = 0x2C
	OpKadStart             uint8 = 0x2D
	OpKadStop              uint8 = 0x2E
	OpConnect              uint8 = 0x2F
	OpDisconnect           uint8 = 0x30
	OpAuthSalt             uint8 = 0x31
	OpAuthPasswd           uint8 = 0x32
	OpPartfilePause        uint8 = 0x33
	OpPartfileResume       uint8 = 0x34
	OpPartfileStop         uint8 = 0x35
	OpPartfilePrioSet      uint8 = 0x36
	OpPartfileDelete       uint8 = 0x37
	OpPartfileSetCat       uint8 = 0x38
	OpKnownfileSetUpPrio   uint8 = 0x39
)

// Detail levels for queue and list requests.
const (
	DetailCmd       uint8 = 0
	DetailWeb       uint8 = 1
	DetailFull      uint8 = 2
	DetailUpdate    uint8 = 3
	DetailIncUpdate uint8 = 4
)

// Tag types.
const (
	TagTypeUnknown uint8 = 0
	TagTypeCustom  uint8 = 1
	TagTypeUInt8   uint8 = 2
	TagTypeUInt16  uint8 = 3
	TagTypeUInt32  uint8 = 4
	TagTypeUInt64  uint8 = 5
	TagTypeString  uint8 = 6
	TagTypeDouble  uint8 = 7
	TagTypeIPv4    uint8 = 8
	TagTypeHash16  uint8 = 9
)

// Tag names. Grouped in blocks by subject; the wire carries the name
// shifted left one bit with the LSB flagging children.
const (
	// base
	TagString          uint16 = 0x0000
	TagPasswdHash      uint16 = 0x0001
	TagProtocolVersion uint16 = 0x0002
	TagVersionID       uint16 = 0x0003
	TagDetailLevel     uint16 = 0x0004
	TagConnState       uint16 = 0x0005
	TagEd2kID          uint16 = 0x0006
	TagLogToStatus     uint16 = 0x0007
	TagClientID        uint16 = 0x000A
	TagPasswdSalt      uint16 = 0x000B
	TagCanZlib         uint16 = 0x000C
	TagCanUTF8Numbers  uint16 = 0x000D

	// connecting application
	TagClientName    uint16 = 0x0100
	TagClientVersion uint16 = 0x0101

	// stats
	TagStatsULSpeed       uint16 = 0x0200
	TagStatsDLSpeed       uint16 = 0x0201
	TagStatsULSpeedLimit  uint16 = 0x0202
	TagStatsDLSpeedLimit  uint16 = 0x0203
	TagStatsTotalSrcCount uint16 = 0x0206
	TagStatsULQueueLen    uint16 = 0x0208
	TagStatsEd2kUsers     uint16 = 0x0209
	TagStatsKadUsers      uint16 = 0x020A
	TagStatsEd2kFiles     uint16 = 0x020B
	TagStatsKadFiles      uint16 = 0x020C
	TagStatsKadFirewalled uint16 = 0x020E
	TagStatsTotalSent     uint16 = 0x0212
	TagStatsTotalReceived uint16 = 0x0213

	// partfile (download queue entries)
	TagPartfile                uint16 = 0x0300
	TagPartfileName            uint16 = 0x0301
	TagPartfilePartMetID       uint16 = 0x0302
	TagPartfileSizeFull        uint16 = 0x0303
	TagPartfileSizeXfer        uint16 = 0x0304
	TagPartfileSizeXferUp      uint16 = 0x0305
	TagPartfileSizeDone        uint16 = 0x0306
	TagPartfileSpeed           uint16 = 0x0307
	TagPartfileStatus          uint16 = 0x0308
	TagPartfilePrio            uint16 = 0x0309
	TagPartfileSourceCount     uint16 = 0x030A
	TagPartfileSourceCountA4AF uint16 = 0x030B
	TagPartfileSourceCountNC   uint16 = 0x030C
	TagPartfileSourceCountXfer uint16 = 0x030D
	TagPartfileEd2kLink        uint16 = 0x030E
	TagPartfileCat             uint16 = 0x030F
	TagPartfileLastRecv        uint16 = 0x0310
	TagPartfileLastSeenComp    uint16 = 0x0311
	TagPartfilePartStatus      uint16 = 0x0312
	TagPartfileGapStatus       uint16 = 0x0313
	TagPartfileReqStatus       uint16 = 0x0314
	TagPartfileStopped         uint16 = 0x0317
	TagPartfileHash            uint16 = 0x031E

	// knownfile (shared files)
	TagKnownfile                uint16 = 0x0400
	TagKnownfileXferred         uint16 = 0x0401
	TagKnownfileXferredAll      uint16 = 0x0402
	TagKnownfileReqCount        uint16 = 0x0403
	TagKnownfileReqCountAll     uint16 = 0x0404
	TagKnownfileAcceptCount     uint16 = 0x0405
	TagKnownfileAcceptCountAll  uint16 = 0x0406
	TagKnownfileFilename        uint16 = 0x0408
	TagKnownfilePrio            uint16 = 0x040B
	TagKnownfileOnQueue         uint16 = 0x040C
	TagKnownfileCompleteSources uint16 = 0x040D

	// server
	TagServer         uint16 = 0x0500
	TagServerName     uint16 = 0x0501
	TagServerDesc     uint16 = 0x0502
	TagServerAddress  uint16 = 0x0503
	TagServerPing     uint16 = 0x0504
	TagServerUsers    uint16 = 0x0505
	TagServerUsersMax uint16 = 0x0506
	TagServerFiles    uint16 = 0x0507
	TagServerPrio     uint16 = 0x0508
	TagServerFailed   uint16 = 0x0509
	TagServerStatic   uint16 = 0x050A
	TagServerVersion  uint16 = 0x050B

	// upload queue clients
	TagClient              uint16 = 0x0600
	TagClientSoftware      uint16 = 0x0601
	TagClientUserName      uint16 = 0x0602
	TagClientUploadSession uint16 = 0x0609
	TagClientUploadTotal   uint16 = 0x060A
	TagClientDownloadTotal uint16 = 0x060B
	TagClientUpSpeed       uint16 = 0x060D
	TagClientUserIP        uint16 = 0x0610
	TagClientUserPort      uint16 = 0x0611
	TagClientUploadFile    uint16 = 0x0612

	// search
	TagSearchFile         uint16 = 0x0700
	TagSearchType         uint16 = 0x0701
	TagSearchName         uint16 = 0x0702
	TagSearchMinSize      uint16 = 0x0703
	TagSearchMaxSize      uint16 = 0x0704
	TagSearchFileType     uint16 = 0x0705
	TagSearchExtension    uint16 = 0x0706
	TagSearchAvailability uint16 = 0x0707
	TagSearchStatus       uint16 = 0x0708

	// preferences
	TagSelectPrefs         uint16 = 0x1000
	TagPrefsCategories     uint16 = 0x1100
	TagCategory            uint16 = 0x1101
	TagCategoryTitle       uint16 = 0x1102
	TagCategoryPath        uint16 = 0x1103
	TagCategoryComment     uint16 = 0x1104
	TagCategoryColor       uint16 = 0x1105
	TagCategoryPrio        uint16 = 0x1106
	TagPrefsDirectories    uint16 = 0x1A00
	TagDirectoriesIncoming uint16 = 0x1A01
	TagDirectoriesTemp     uint16 = 0x1A02

	// stats tree
	TagStatTreeNode      uint16 = 0x2000
	TagStatTreeNodeID    uint16 = 0x2001
	TagStatTreeNodeValue uint16 = 0x2002
)

// Preference selection bits for OpGetPreferences.
const (
	PrefsCategories  uint32 = 0x01
	PrefsDirectories uint32 = 0x02
)

// Search types for OpSearchStart.
const (
	SearchLocal  uint32 = 0
	SearchGlobal uint32 = 1
	SearchKad    uint32 = 2
)

// Partfile status values carried in TagPartfileStatus.
const (
	StatusReady          uint8 = 0
	StatusEmpty          uint8 = 1
	StatusWaitingForHash uint8 = 2
	StatusHashing        uint8 = 3
	StatusError          uint8 = 4
	StatusInsufficient   uint8 = 5
	StatusUnknown        uint8 = 6
	StatusPaused         uint8 = 7
	StatusCompleting     uint8 = 8
	StatusComplete       uint8 = 9
	StatusAllocating     uint8 = 10
)

// Download priorities. The wire adds autoPrioOffset when the priority
// is managed automatically.
const (
	PrioLow      uint8 = 0
	PrioNormal   uint8 = 1
	PrioHigh     uint8 = 2
	PrioVeryHigh uint8 = 3
	PrioVeryLow  uint8 = 4
	PrioAuto     uint8 = 5

	autoPrioOffset uint8 = 10
)

// EncodePriority folds the auto flag into the wire value.
func EncodePriority(prio uint8, auto bool) uint8 {
	if auto {
		return prio + autoPrioOffset
	}
	return prio
}

// DecodePriority splits the wire value into priority and auto flag.
func DecodePriority(v uint8) (prio uint8, auto bool) {
	if v >= autoPrioOffset {
		return v - autoPrioOffset, true
	}
	return v, false
}

// Connection state bits carried in the TagConnState value.
const (
	ConnStateConnectedEd2k  uint8 = 0x01
	ConnStateConnectingEd2k uint8 = 0x02
	ConnStateConnectedKad   uint8 = 0x04
	ConnStateKadFirewalled  uint8 = 0x08
	ConnStateKadRunning     uint8 = 0x10
)

// LowIDThreshold: ed2k client IDs below this are low IDs.
const LowIDThreshold uint32 = 16777216

var opNames = map[uint8]string{
	OpNoop:                 "noop",
	OpAuthReq:              "auth-req",
	OpAuthFail:             "auth-fail",
	OpAuthOK:               "auth-ok",
	OpFailed:               "failed",
	OpStrings:              "strings",
	OpMiscData:             "misc-data",
	OpShutdown:             "shutdown",
	OpAddLink:              "add-link",
	OpStatReq:              "stat-req",
	OpGetConnState:         "get-connstate",
	OpStats:                "stats",
	OpGetDownloadQueue:     "get-dload-queue",
	OpDownloadQueue:        "dload-queue",
	OpGetUploadQueue:       "get-uload-queue",
	OpUploadQueue:          "uload-queue",
	OpGetSharedFiles:       "get-shared-files",
	OpSharedFiles:          "shared-files",
	OpSearchStart:          "search-start",
	OpSearchStop:           "search-stop",
	OpSearchResults:        "search-results",
	OpSearchProgress:       "search-progress",
	OpDownloadSearchResult: "download-search-result",
	OpGetServerList:        "get-server-list",
	OpServerList:           "server-list",
	OpServerDisconnect:     "server-disconnect",
	OpServerConnect:        "server-connect",
	OpServerRemove:         "server-remove",
	OpServerAdd:            "server-add",
	OpServerUpdateFromURL:  "server-update-from-url",
	OpGetLog:               "get-log",
	OpLog:                  "log",
	OpGetPreferences:       "get-preferences",
	OpSetPreferences:       "set-preferences",
	OpCreateCategory:       "create-category",
	OpUpdateCategory:       "update-category",
	OpDeleteCategory:       "delete-category",
	OpGetStatsTree:         "get-stats-tree",
	OpStatsTree:            "stats-tree",
	OpAuthSalt:             "auth-salt",
	OpAuthPasswd:           "auth-passwd",
	OpPartfilePause:        "partfile-pause",
	OpPartfileResume:       "partfile-resume",
	OpPartfileStop:         "partfile-stop",
	OpPartfilePrioSet:      "partfile-prio-set",
	OpPartfileDelete:       "partfile-delete",
	OpPartfileSetCat:       "partfile-set-cat",
}

// OpName returns a readable opcode name for logging.
func OpName(op uint8) string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "unknown"
}
