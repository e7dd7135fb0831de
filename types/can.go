package types

// ------------------------
// CAN bus capability
// ------------------------

const KindCAN Kind = "can"

type CANInfo struct {
	Bus            string `json:"bus"`
	Bitrate        uint32 `json:"bitrate"`
	Mode           string `json:"mode"` // "normal","loopback","silent","silent_loopback"
	FIFO           uint8  `json:"fifo"`
	Prescaler      uint16 `json:"prescaler,omitempty"` // zero for external controllers
	Seg1           uint8  `json:"seg1,omitempty"`
	Seg2           uint8  `json:"seg2,omitempty"`
	SJW            uint8  `json:"sjw,omitempty"`
	SamplePermille uint16 `json:"sample_permille,omitempty"`
}

// CANFrame is a standard-identifier frame on the bus. Published on
// .../event/rx and accepted by control/send. For remote frames DLC gives the
// requested length and Data is empty.
type CANFrame struct {
	ID     uint16 `json:"id"`
	Data   []byte `json:"data,omitempty"`
	Remote bool   `json:"remote,omitempty"`
	DLC    uint8  `json:"dlc,omitempty"`
	TS     int64  `json:"ts_ms,omitempty"`
}

// CANTxStatus answers control/status for the most recent send.
type CANTxStatus struct {
	Mailbox int    `json:"mailbox"` // -1 before the first send
	Status  string `json:"status"`  // "pending","ok","arbitration_lost","tx_error","other_error"
}

// CANFilterSpec describes one acceptance filter bank for control/add_filter
// and the device's initial filter list.
//
// Kind selects the layout:
//
//	"all"    accept every standard frame
//	"mask32" IDs[0] under Masks[0]
//	"list32" IDs[0..1]
//	"mask16" IDs[0..1] under Masks[0..1]
//	"list16" IDs[0..3]
type CANFilterSpec struct {
	Bank  uint8    `json:"bank"`
	Kind  string   `json:"kind"`
	IDs   []uint16 `json:"ids,omitempty"`
	Masks []uint16 `json:"masks,omitempty"`
	FIFO  string   `json:"fifo,omitempty"` // "", "fifo0", "fifo1"
}

// CANErrorState is published on .../value by control/read.
type CANErrorState struct {
	TEC       uint8  `json:"tec"`
	REC       uint8  `json:"rec"`
	LastError string `json:"last_error"`
	Warning   bool   `json:"warning"`
	Passive   bool   `json:"passive"`
	BusOff    bool   `json:"bus_off"`
	RxPending uint8  `json:"rx_pending"`
	RxOverrun bool   `json:"rx_overrun"`
	RxFrames  uint32 `json:"rx_frames"`
	TxFrames  uint32 `json:"tx_frames"`
	RxDropped uint32 `json:"rx_dropped"` // frames lost to a full HAL queue
	TS        int64  `json:"ts_ms"`
}
