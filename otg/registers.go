package otg

import "github.com/apm32sdk/usbotg/pkg/reg"

// Core dimensions.
const (
	HostChannels    = 12 // host channels
	DeviceEndpoints = 8  // device endpoints per direction
)

// Registers is the complete register file of one OTG core.
//
// Registers are plain storage. Drivers read and write them with the
// accessors in package reg; the core model reacts to the stored values when
// it runs (see Core.Step and Core.Delay) and recomputes the summary
// registers in Core.Sync.
type Registers struct {
	G       Global
	H       Host
	D       Device
	PCGCTRL uint32 // power and clock gating control
}

// Global holds the core global registers.
type Global struct {
	GCTRLSTS   uint32 // OTG control and status
	GINT       uint32 // OTG interrupt
	GAHBCFG    uint32 // AHB configuration
	GUSBCFG    uint32 // USB configuration
	GRSTCTRL   uint32 // reset control
	GCINT      uint32 // core interrupt
	GINTMASK   uint32 // core interrupt mask
	GRXSTS     uint32 // receive status (peek; pop through Core.PopRxStatus)
	GRXFIFO    uint32 // receive FIFO size
	GTXFCFG    uint32 // non-periodic (host) / EP0 (device) transmit FIFO size
	GNPTXFQSTS uint32 // non-periodic transmit FIFO/queue status
	GGCCFG     uint32 // general core configuration
	GCID       uint32 // core ID
	GHPTXFSIZE uint32 // host periodic transmit FIFO size

	DTXFIFO [DeviceEndpoints - 1]uint32 // device IN endpoint 1..7 transmit FIFO size
}

// Channel holds the registers of one host channel.
type Channel struct {
	HCH      uint32 // characteristics
	HCHINT   uint32 // interrupt
	HCHIMASK uint32 // interrupt mask
	HCHTSIZE uint32 // transfer size
}

// Host holds the host-mode registers.
type Host struct {
	HCFG      uint32 // host configuration
	HFIVL     uint32 // frame interval
	HFIFM     uint32 // frame number / frame time remaining
	HPTXSTS   uint32 // periodic transmit FIFO/queue status
	HACHINT   uint32 // all channels interrupt
	HACHIMASK uint32 // all channels interrupt mask
	HPORTCSTS uint32 // port control and status

	Ch [HostChannels]Channel
}

// InEndpoint holds the registers of one device IN endpoint.
type InEndpoint struct {
	DIEPCTRL uint32
	DIEPINT  uint32
	DIEPTRS  uint32
	DITXFSTS uint32
}

// OutEndpoint holds the registers of one device OUT endpoint.
type OutEndpoint struct {
	DOEPCTRL uint32
	DOEPINT  uint32
	DOEPTRS  uint32
}

// Device holds the device-mode registers.
type Device struct {
	DCFG      uint32 // device configuration
	DCTRL     uint32 // device control
	DSTS      uint32 // device status
	DINIMASK  uint32 // IN endpoint common interrupt mask
	DOUTIMASK uint32 // OUT endpoint common interrupt mask
	DAEPINT   uint32 // all endpoints interrupt
	DAEPIMASK uint32 // all endpoints interrupt mask
	DIEIMASK  uint32 // IN endpoint TxFIFO empty interrupt mask

	In  [DeviceEndpoints]InEndpoint
	Out [DeviceEndpoints]OutEndpoint
}

// GCINT and GINTMASK bits.
const (
	GintCURMOSEL  uint32 = 1 << 0  // current mode (1 = host), derived
	GintMMIS      uint32 = 1 << 1  // mode mismatch
	GintOTG       uint32 = 1 << 2  // OTG event
	GintSOF       uint32 = 1 << 3  // start of frame
	GintRXFNONE   uint32 = 1 << 4  // RxFIFO non-empty, derived
	GintNPTXFEM   uint32 = 1 << 5  // non-periodic TxFIFO empty, derived
	GintGINNPNAKE uint32 = 1 << 6  // global IN non-periodic NAK effective
	GintGONAKE    uint32 = 1 << 7  // global OUT NAK effective
	GintESUS      uint32 = 1 << 10 // early suspend
	GintUSBSUS    uint32 = 1 << 11 // USB suspend
	GintUSBRST    uint32 = 1 << 12 // USB reset
	GintENUMD     uint32 = 1 << 13 // enumeration done
	GintISOPD     uint32 = 1 << 14 // isochronous OUT packet dropped
	GintEOPF      uint32 = 1 << 15 // end of periodic frame
	GintINEP      uint32 = 1 << 18 // IN endpoint, derived
	GintONEP      uint32 = 1 << 19 // OUT endpoint, derived
	GintIIINTX    uint32 = 1 << 20 // incomplete isochronous IN
	GintIPOUTTX   uint32 = 1 << 21 // incomplete periodic (host) / isochronous OUT (device)
	GintDFSUS     uint32 = 1 << 22 // data fetch suspended
	GintHPORT     uint32 = 1 << 24 // host port, derived
	GintHCHAN     uint32 = 1 << 25 // host channels, derived
	GintPTXFE     uint32 = 1 << 26 // periodic TxFIFO empty, derived
	GintCINSTSCHG uint32 = 1 << 28 // connector ID status change
	GintDEDIS     uint32 = 1 << 29 // disconnect detected
	GintSREQ      uint32 = 1 << 30 // session request
	GintRWAKE     uint32 = 1 << 31 // resume / remote wakeup detected

	// GintDerived are recomputed by Core.Sync and cannot be cleared.
	GintDerived = GintCURMOSEL | GintRXFNONE | GintNPTXFEM | GintINEP |
		GintONEP | GintHPORT | GintHCHAN | GintPTXFE

	GintAll uint32 = 0xFFFFFFFF
)

// GAHBCFG bits.
const (
	AhbcfgGINTMASK uint32 = 1 << 0 // global interrupt enable
	AhbcfgTXFELVL  uint32 = 1 << 7 // TxFIFO empty level
	AhbcfgPTXFELVL uint32 = 1 << 8 // periodic TxFIFO empty level
)

// GUSBCFG fields.
var UsbcfgTRTIM = reg.Field{Pos: 10, Width: 4} // turnaround time

// GUSBCFG bits.
const (
	UsbcfgPHYSEL uint32 = 1 << 6  // full-speed serial transceiver
	UsbcfgFHMODE uint32 = 1 << 29 // force host mode
	UsbcfgFDMODE uint32 = 1 << 30 // force device mode
)

// GRSTCTRL bits and fields.
const (
	RstCSRST    uint32 = 1 << 0  // core soft reset
	RstHSRST    uint32 = 1 << 1  // HCLK soft reset
	RstHFCNTRST uint32 = 1 << 2  // host frame counter reset
	RstRXFFLU   uint32 = 1 << 4  // RxFIFO flush
	RstTXFFLU   uint32 = 1 << 5  // TxFIFO flush
	RstAHBMIDL  uint32 = 1 << 31 // AHB master idle
)

// RstTXFNUM selects the TxFIFO to flush; TxFIFOAll flushes every FIFO.
var RstTXFNUM = reg.Field{Pos: 6, Width: 5}

// TxFIFOAll is the RstTXFNUM value that selects every transmit FIFO.
const TxFIFOAll = 0x10

// GRXSTS fields (host uses CHNUM, device uses EPNUM).
var (
	RxstsCHNUM = reg.Field{Pos: 0, Width: 4}
	RxstsBCNT  = reg.Field{Pos: 4, Width: 11}
	RxstsDPID  = reg.Field{Pos: 15, Width: 2}
	RxstsPSTS  = reg.Field{Pos: 17, Width: 4}
	RxstsFNUM  = reg.Field{Pos: 21, Width: 4}
)

// Receive packet status codes, host mode.
const (
	PktStatusIn          = 2 // IN data packet received
	PktStatusInComplete  = 3 // IN transfer completed
	PktStatusToggleError = 5 // data toggle error
	PktStatusChannelHalt = 7 // channel halted
)

// Receive packet status codes, device mode.
const (
	PktStatusGlobalOutNAK  = 1 // global OUT NAK
	PktStatusOutData       = 2 // OUT data packet received
	PktStatusOutComplete   = 3 // OUT transfer completed
	PktStatusSetupComplete = 4 // SETUP transaction completed
	PktStatusSetupData     = 6 // SETUP data packet received
)

// FIFO size fields (GRXFIFO, GTXFCFG, GHPTXFSIZE, DTXFIFO).
var (
	RxfifoRXFDEP   = reg.Field{Pos: 0, Width: 16}
	TxfcfgStart    = reg.Field{Pos: 0, Width: 16}
	TxfcfgDepth    = reg.Field{Pos: 16, Width: 16}
	NptxqNPTXFSA   = reg.Field{Pos: 0, Width: 16} // free words
	NptxqNPTXRSA   = reg.Field{Pos: 16, Width: 8} // free request queue slots
	NptxqNPTXRQ    = reg.Field{Pos: 24, Width: 7} // top of request queue
	HptxstsFSPACE  = reg.Field{Pos: 0, Width: 16}
	HptxstsQSPACE  = reg.Field{Pos: 16, Width: 8}
	HptxstsQTOP    = reg.Field{Pos: 24, Width: 8}
	RequestChannel = reg.Field{Pos: 3, Width: 4} // channel inside NPTXRQ / QTOP
)

// Request queue depth of both transmit queues.
const RequestQueueDepth = 8

// GGCCFG bits.
const (
	GgccfgPWEN    uint32 = 1 << 16 // power down deactivated
	GgccfgSOFPOUT uint32 = 1 << 20 // SOF pulse output
	GgccfgVBSDIS  uint32 = 1 << 21 // VBUS sensing disabled
)

// HCFG field and PHY clock selections.
var HcfgPHYCLKSEL = reg.Field{Pos: 0, Width: 2}

// HCFG bits.
const HcfgFSSPT uint32 = 1 << 2 // FS/LS only

// PHY clock selections.
const (
	PhyClk30_60MHz = 0
	PhyClk48MHz    = 1
	PhyClk6MHz     = 2
)

// HFIVL, HFIFM fields.
var (
	HfivlFIVL   = reg.Field{Pos: 0, Width: 16}
	HfifmFNUM   = reg.Field{Pos: 0, Width: 16}
	HfifmFRTIME = reg.Field{Pos: 16, Width: 16}
)

// HPORTCSTS bits.
const (
	PortPCNNTFLG uint32 = 1 << 0  // device connected
	PortPCINTFLG uint32 = 1 << 1  // port connect detected
	PortPEN      uint32 = 1 << 2  // port enabled
	PortPENCHG   uint32 = 1 << 3  // port enable changed
	PortPOVC     uint32 = 1 << 4  // over-current active
	PortPOVCCHG  uint32 = 1 << 5  // over-current changed
	PortPRS      uint32 = 1 << 6  // resume
	PortPSUS     uint32 = 1 << 7  // suspend
	PortPRST     uint32 = 1 << 8  // reset
	PortPP       uint32 = 1 << 12 // power

	// PortChangeFlags are the write-one-to-clear change bits.
	PortChangeFlags = PortPCINTFLG | PortPENCHG | PortPOVCCHG
)

// HPORTCSTS fields.
var (
	PortPDLSTS  = reg.Field{Pos: 10, Width: 2}
	PortPTSEL   = reg.Field{Pos: 13, Width: 4}
	PortPSPDSEL = reg.Field{Pos: 17, Width: 2}
)

// Port speeds (PSPDSEL).
const (
	PortSpeedHigh = 0
	PortSpeedFull = 1
	PortSpeedLow  = 2
)

// HCH fields and bits.
var (
	HchMAXPSIZE = reg.Field{Pos: 0, Width: 11}
	HchEDPNUM   = reg.Field{Pos: 11, Width: 4}
	HchEDPTYP   = reg.Field{Pos: 18, Width: 2}
	HchCNTSEL   = reg.Field{Pos: 20, Width: 2}
	HchDVADDR   = reg.Field{Pos: 22, Width: 7}
)

const (
	HchEDPDRT uint32 = 1 << 15 // endpoint direction, 1 = IN
	HchLSDV   uint32 = 1 << 17 // low-speed device
	HchODDF   uint32 = 1 << 29 // odd frame
	HchCHINT  uint32 = 1 << 30 // channel disable (halt) request
	HchCHEN   uint32 = 1 << 31 // channel enable
)

// HCHINT / HCHIMASK bits.
const (
	ChintTSFCMPN  uint32 = 1 << 0  // transfer completed normally
	ChintTSFCMPAN uint32 = 1 << 1  // transfer completed abnormally (channel halted)
	ChintAHBERR   uint32 = 1 << 2  // AHB error
	ChintRXSTALL  uint32 = 1 << 3  // STALL received
	ChintRXNAK    uint32 = 1 << 4  // NAK received
	ChintRXTXACK  uint32 = 1 << 5  // ACK received/transmitted
	ChintRXNYET   uint32 = 1 << 6  // NYET received
	ChintTERR     uint32 = 1 << 7  // transaction error
	ChintBABBLE   uint32 = 1 << 8  // babble error
	ChintFOVR     uint32 = 1 << 9  // frame overrun
	ChintDTOG     uint32 = 1 << 10 // data toggle error
	ChintAll      uint32 = 0x7FF
)

// HCHTSIZE fields and bits.
var (
	TsizeTSFSIZE = reg.Field{Pos: 0, Width: 19}
	TsizePCKTCNT = reg.Field{Pos: 19, Width: 10}
	TsizeDATAPID = reg.Field{Pos: 29, Width: 2}
)

const TsizeDOPING uint32 = 1 << 31

// Data PIDs as encoded in DATAPID / DPID.
const (
	PidData0 = 0
	PidData2 = 1
	PidData1 = 2
	PidSetup = 3 // MDATA in device mode
)

// Endpoint types as encoded in EDPTYP / EPTYPE.
const (
	EpTypeControl   = 0
	EpTypeIso       = 1
	EpTypeBulk      = 2
	EpTypeInterrupt = 3
)

// MaxPacketCount is the largest PCKTCNT a single transfer may program.
const MaxPacketCount = 256

// DCFG fields and bits.
var (
	DcfgDSPDSEL = reg.Field{Pos: 0, Width: 2}
	DcfgDADDR   = reg.Field{Pos: 4, Width: 7}
	DcfgPFITV   = reg.Field{Pos: 11, Width: 2}
)

const DcfgSENDOUT uint32 = 1 << 2 // send received OUT ZLP to the application

// Device speed selections (DSPDSEL).
const (
	DeviceSpeedHigh   = 0
	DeviceSpeedFullHS = 1 // full speed on the high-speed PHY
	DeviceSpeedFull   = 3 // full speed on the internal PHY
)

// Enumerated speeds (DSTS.ENUMSPD).
const (
	EnumSpeedHigh   = 0
	EnumSpeedFull30 = 1
	EnumSpeedLow    = 2
	EnumSpeedFull48 = 3
)

// DCTRL bits and fields.
const (
	DctrlRWKUPS   uint32 = 1 << 0  // remote wakeup signalling
	DctrlSDCNNT   uint32 = 1 << 1  // soft disconnect
	DctrlGINAKSET uint32 = 1 << 7  // set global IN NAK
	DctrlGINAKCLR uint32 = 1 << 8  // clear global IN NAK
	DctrlGONAKSET uint32 = 1 << 9  // set global OUT NAK
	DctrlGONAKCLR uint32 = 1 << 10 // clear global OUT NAK
)

var DctrlTESTSEL = reg.Field{Pos: 4, Width: 3}

// DSTS bits and fields.
const DstsSUSSTS uint32 = 1 << 0

var (
	DstsENUMSPD = reg.Field{Pos: 1, Width: 2}
	DstsSOFNUM  = reg.Field{Pos: 8, Width: 14}
)

// DAEPINT / DAEPIMASK halves.
var (
	DaepintIN  = reg.Field{Pos: 0, Width: 16}
	DaepintOUT = reg.Field{Pos: 16, Width: 16}
)

// DIEPCTRL / DOEPCTRL fields and bits.
var (
	EpctlMAXPS  = reg.Field{Pos: 0, Width: 11}
	EpctlEPTYPE = reg.Field{Pos: 18, Width: 2}
	EpctlTXFNUM = reg.Field{Pos: 22, Width: 4}
)

const (
	EpctlUSBAEP  uint32 = 1 << 15 // endpoint active
	EpctlEOF     uint32 = 1 << 16 // even/odd frame
	EpctlNAKSTS  uint32 = 1 << 17 // NAK status
	EpctlSNMEN   uint32 = 1 << 20 // snoop mode (OUT)
	EpctlSTALLH  uint32 = 1 << 21 // STALL handshake
	EpctlNAKCLR  uint32 = 1 << 26 // clear NAK
	EpctlNAKSET  uint32 = 1 << 27 // set NAK
	EpctlDPIDSET uint32 = 1 << 28 // set DATA0 PID
	EpctlOFSET   uint32 = 1 << 29 // set odd frame
	EpctlEPDIS   uint32 = 1 << 30 // endpoint disable
	EpctlEPEN    uint32 = 1 << 31 // endpoint enable
)

// EP0 maximum packet size codes for MAXPS.
const (
	Ep0MPS64 = 0
	Ep0MPS32 = 1
	Ep0MPS16 = 2
	Ep0MPS8  = 3
)

// DIEPINT bits.
const (
	DiepintTSFCMP  uint32 = 1 << 0 // transfer completed
	DiepintEPDIS   uint32 = 1 << 1 // endpoint disabled
	DiepintTO      uint32 = 1 << 3 // timeout
	DiepintITXEMP  uint32 = 1 << 4 // IN token received with TxFIFO empty
	DiepintIEPNAKE uint32 = 1 << 6 // IN endpoint NAK effective
	DiepintTXFE    uint32 = 1 << 7 // TxFIFO empty, level
	DiepintAll     uint32 = 0xFF
)

// DOEPINT bits.
const (
	DoepintTSFCMP  uint32 = 1 << 0  // transfer completed
	DoepintEPDIS   uint32 = 1 << 1  // endpoint disabled
	DoepintSETPCMP uint32 = 1 << 3  // SETUP phase done
	DoepintRXOTDIS uint32 = 1 << 4  // OUT token received with endpoint disabled
	DoepintRXBSP   uint32 = 1 << 6  // back-to-back SETUP packets received
	DoepintNYET    uint32 = 1 << 14 // NYET
	DoepintAll     uint32 = 0xFFFF
)

// DIEPTRS / DOEPTRS fields.
var (
	EptrsEPTRS    = reg.Field{Pos: 0, Width: 19}
	EptrsEPPCNT   = reg.Field{Pos: 19, Width: 10}
	EptrsPIDSPCNT = reg.Field{Pos: 29, Width: 2} // OUT: SETUP packet count; IN: multi count
)

// DITXFSTS field.
var DitxfstsINEPTXFSA = reg.Field{Pos: 0, Width: 16}
