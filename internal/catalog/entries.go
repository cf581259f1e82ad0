package catalog

const uuidSuffix = "-4c45-4b43-4942-265a524f5453"

// Services.
const (
	DataService = "00000001" + uuidSuffix
	MetaService = "00000002" + uuidSuffix
	MiscService = "00000003" + uuidSuffix
)

// Primary data service characteristics.
const (
	Temperature = "00000011" + uuidSuffix
	SetPoint    = "00000021" + uuidSuffix
	Boost       = "00000031" + uuidSuffix
	Battery     = "00000041" + uuidSuffix
	LED         = "00000051" + uuidSuffix
)

// Metadata service characteristics.
const (
	Model           = "00000022" + uuidSuffix
	FirmwareVersion = "00000032" + uuidSuffix
	Serial          = "00000052" + uuidSuffix
	FirmwareBLE     = "00000072" + uuidSuffix
	Bootloader      = "00000082" + uuidSuffix
)

// Miscellaneous service characteristics.
const (
	HoursOfOperation   = "00000023" + uuidSuffix
	Settings           = "000001c3" + uuidSuffix
	Power              = "00000063" + uuidSuffix
	BoostHeat          = "00000073" + uuidSuffix
	Charge             = "00000083" + uuidSuffix
	MinutesOfOperation = "000001e3" + uuidSuffix
	BatteryVoltage     = "00000153" + uuidSuffix
	BatteryCapacity    = "00000143" + uuidSuffix
	ChargeCurrent      = "000001b3" + uuidSuffix
	HeaterRuntime      = "00000163" + uuidSuffix
	UsageCounter       = "000001d3" + uuidSuffix
	AmbientTemperature = "00000183" + uuidSuffix
)

var entries = []Descriptor{
	// primary data
	{UUID: Temperature, Service: DataService, Kind: Numeric, Label: "Current temperature", Notify: true, Mandatory: true},
	{UUID: SetPoint, Service: DataService, Kind: Numeric, Label: "Set-point", Mandatory: true},
	{UUID: Boost, Service: DataService, Kind: Numeric, Label: "Boost", Mandatory: true},
	{UUID: Battery, Service: DataService, Kind: Numeric, Label: "Battery", Suffix: "%", Notify: true, Mandatory: true},
	{UUID: LED, Service: DataService, Kind: Numeric, Label: "LED brightness", Suffix: "%"},

	// metadata
	{UUID: Serial, Service: MetaService, Kind: Text, Label: "Serial number", Mandatory: true},
	{UUID: Model, Service: MetaService, Kind: Text, Label: "Model", Mandatory: true},
	{UUID: FirmwareVersion, Service: MetaService, Kind: Text, Label: "Firmware version", Mandatory: true},
	{UUID: FirmwareBLE, Service: MetaService, Kind: Text, Label: "BLE firmware version", Group: GroupDiagnostics},
	{UUID: Bootloader, Service: MetaService, Kind: Text, Label: "Bootloader version", Group: GroupDiagnostics},

	// miscellaneous
	{UUID: Settings, Service: MiscService, Kind: Numeric, Label: "Settings", Mandatory: true},
	{UUID: HoursOfOperation, Service: MiscService, Kind: Numeric, Label: "Hours of operation", Suffix: "h", Mandatory: true},
	{UUID: Power, Service: MiscService, Kind: Numeric, Label: "Power", Notify: true, Mandatory: true},
	{UUID: BoostHeat, Service: MiscService, Kind: Numeric, Label: "Boost heat", Mandatory: true},
	{UUID: Charge, Service: MiscService, Kind: Numeric, Label: "Charge", Mandatory: true},
	{UUID: BatteryVoltage, Service: MiscService, Kind: Numeric, Label: "Battery voltage", Divider: 1000, Suffix: "V", Group: GroupBattery},
	{UUID: BatteryCapacity, Service: MiscService, Kind: Numeric, Label: "Battery capacity", Suffix: "mAh", Group: GroupBattery},
	{UUID: ChargeCurrent, Service: MiscService, Kind: Numeric, Label: "Charge current", Suffix: "mA", Group: GroupBattery},
	{UUID: MinutesOfOperation, Service: MiscService, Kind: Numeric, Label: "Minutes of operation", Suffix: "min", Group: GroupDiagnostics},
	{UUID: HeaterRuntime, Service: MiscService, Kind: Numeric, Label: "Heater runtime", Suffix: "h", Group: GroupDiagnostics},
	{UUID: UsageCounter, Service: MiscService, Kind: Numeric, Label: "Usage counter", Group: GroupDiagnostics},
	{UUID: AmbientTemperature, Service: MiscService, Kind: Numeric, Label: "Ambient temperature", Divider: 10, Suffix: "°C", Notify: true, Group: GroupDiagnostics},
}
