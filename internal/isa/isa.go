// Package isa models the CPU configuration sent to the simulator with every request:
// buffer sizes, branch prediction, functional-unit layout, cache geometry and the
// memory locations the program expects.
package isa

// PredictorType selects the branch predictor counter width.
type PredictorType string

const (
	Predictor1Bit PredictorType = "1bit"
	Predictor2Bit PredictorType = "2bit"
)

// PredictorDefault is the initial prediction of the pattern history table.
type PredictorDefault string

const (
	PredictTaken    PredictorDefault = "Taken"
	PredictNotTaken PredictorDefault = "Not Taken"
)

// UnitType is the class of a functional unit.
type UnitType string

const (
	UnitFX        UnitType = "FX"
	UnitFP        UnitType = "FP"
	UnitLoadStore UnitType = "L_S"
	UnitBranch    UnitType = "Branch"
	UnitMemory    UnitType = "Memory"
)

// Arithmetic reports whether units of this type carry an operation list.
func (u UnitType) Arithmetic() bool {
	return u == UnitFX || u == UnitFP
}

// Operation is a class of arithmetic an FX or FP unit can execute.
type Operation string

const (
	OpBitwise        Operation = "bitwise"
	OpAddition       Operation = "addition"
	OpMultiplication Operation = "multiplication"
	OpDivision       Operation = "division"
	OpSpecial        Operation = "special"
)

// AllOperations lists every operation class.
func AllOperations() []Operation {
	return []Operation{OpBitwise, OpAddition, OpMultiplication, OpDivision, OpSpecial}
}

// Cache replacement policies.
const (
	ReplacementLRU    = "LRU"
	ReplacementFIFO   = "FIFO"
	ReplacementRandom = "Random"
)

// StoreWriteBack is the only supported store behavior.
const StoreWriteBack = "write-back"

// FunctionUnit describes one functional unit.
type FunctionUnit struct {
	ID         int         `json:"id" toml:"id" yaml:"id" validate:"gte=0"`
	Name       string      `json:"name,omitempty" toml:"name,omitempty" yaml:"name,omitempty"`
	FuType     UnitType    `json:"fuType" toml:"fuType" yaml:"fuType" validate:"required,oneof=FX FP L_S Branch Memory"`
	Latency    int         `json:"latency" toml:"latency" yaml:"latency" validate:"min=1,max=16"`
	Operations []Operation `json:"operations,omitempty" toml:"operations,omitempty" yaml:"operations,omitempty" validate:"omitempty,dive,oneof=bitwise addition multiplication division special"`
}

// CpuConfig is the architecture configuration.
type CpuConfig struct {
	Name string `json:"name" toml:"name" yaml:"name"`

	// Buffers
	RobSize int `json:"robSize" toml:"robSize" yaml:"robSize" validate:"min=1,max=1000"`
	LbSize  int `json:"lbSize" toml:"lbSize" yaml:"lbSize" validate:"min=1,max=1000"`
	SbSize  int `json:"sbSize" toml:"sbSize" yaml:"sbSize" validate:"min=1,max=1000"`

	// Fetch
	FetchWidth  int `json:"fetchWidth" toml:"fetchWidth" yaml:"fetchWidth" validate:"min=1,max=16"`
	CommitWidth int `json:"commitWidth" toml:"commitWidth" yaml:"commitWidth" validate:"min=1,max=16"`

	// Branch
	BtbSize          int              `json:"btbSize" toml:"btbSize" yaml:"btbSize" validate:"min=1,max=2048"`
	PhtSize          int              `json:"phtSize" toml:"phtSize" yaml:"phtSize" validate:"min=1,max=16"`
	PredictorType    PredictorType    `json:"predictorType" toml:"predictorType" yaml:"predictorType" validate:"oneof=1bit 2bit"`
	PredictorDefault PredictorDefault `json:"predictorDefault" toml:"predictorDefault" yaml:"predictorDefault" validate:"oneof='Taken' 'Not Taken'"`

	FUnits []FunctionUnit `json:"fUnits" toml:"fUnits" yaml:"fUnits" validate:"required,min=1,unique=ID,dive"`

	// Cache
	CacheLines           int    `json:"cacheLines" toml:"cacheLines" yaml:"cacheLines" validate:"min=1,max=1000"`
	CacheLineSize        int    `json:"cacheLineSize" toml:"cacheLineSize" yaml:"cacheLineSize" validate:"min=1,max=1000"`
	CacheAssoc           int    `json:"cacheAssoc" toml:"cacheAssoc" yaml:"cacheAssoc" validate:"min=1,max=1000"`
	CacheReplacement     string `json:"cacheReplacement" toml:"cacheReplacement" yaml:"cacheReplacement" validate:"oneof=LRU FIFO Random"`
	StoreBehavior        string `json:"storeBehavior" toml:"storeBehavior" yaml:"storeBehavior" validate:"oneof=write-back"`
	StoreLatency         int    `json:"storeLatency" toml:"storeLatency" yaml:"storeLatency" validate:"min=0,max=1000"`
	LoadLatency          int    `json:"loadLatency" toml:"loadLatency" yaml:"loadLatency" validate:"min=0,max=1000"`
	LaneReplacementDelay int    `json:"laneReplacementDelay" toml:"laneReplacementDelay" yaml:"laneReplacementDelay" validate:"min=1,max=1000"`
	AddRemainingDelay    bool   `json:"addRemainingDelay" toml:"addRemainingDelay" yaml:"addRemainingDelay"`
}

// DataChunk is a run of values of one type inside a memory location.
type DataChunk struct {
	DataType string   `json:"dataType" toml:"dataType" yaml:"dataType" validate:"datatype"`
	Values   []string `json:"values" toml:"values" yaml:"values"`
}

// MemoryLocation is a named, aligned region the program can address.
type MemoryLocation struct {
	Name       string      `json:"name" toml:"name" yaml:"name" validate:"nonblank"`
	Alignment  int         `json:"alignment" toml:"alignment" yaml:"alignment" validate:"min=1,max=16"`
	DataChunks []DataChunk `json:"dataChunks" toml:"dataChunks" yaml:"dataChunks" validate:"dive"`
	DataType   string      `json:"dataType,omitempty" toml:"dataType,omitempty" yaml:"dataType,omitempty" validate:"omitempty,datatype"`
	DataSource string      `json:"dataSource,omitempty" toml:"dataSource,omitempty" yaml:"dataSource,omitempty" validate:"omitempty,oneof=constant random file"`
}

// SimulationConfig is the complete input of a simulation request.
type SimulationConfig struct {
	CpuConfig       CpuConfig        `json:"cpuConfig" toml:"cpuConfig" yaml:"cpuConfig"`
	Code            string           `json:"code" toml:"code" yaml:"code"`
	MemoryLocations []MemoryLocation `json:"memoryLocations" toml:"memoryLocations" yaml:"memoryLocations" validate:"dive"`
}

// DataTypes lists the element types a data chunk may hold.
var DataTypes = []string{
	"kByte", "kShort", "kInt", "kUInt", "kLong", "kULong", "kFloat", "kDouble", "kBool", "kChar",
}

// DefaultCpuConfig returns the stock configuration.
func DefaultCpuConfig() CpuConfig {
	return CpuConfig{
		Name:             "Default",
		RobSize:          256,
		LbSize:           64,
		SbSize:           64,
		FetchWidth:       3,
		CommitWidth:      4,
		BtbSize:          1024,
		PhtSize:          10,
		PredictorType:    Predictor1Bit,
		PredictorDefault: PredictNotTaken,
		FUnits: []FunctionUnit{
			{ID: 0, Name: "FX Universal", FuType: UnitFX, Latency: 2, Operations: AllOperations()},
			{ID: 1, Name: "FP", FuType: UnitFP, Latency: 2, Operations: AllOperations()},
			{ID: 2, FuType: UnitLoadStore, Latency: 2},
			{ID: 3, FuType: UnitBranch, Latency: 2},
			{ID: 4, FuType: UnitMemory, Latency: 1},
		},
		CacheLines:           16,
		CacheLineSize:        32,
		CacheAssoc:           2,
		CacheReplacement:     ReplacementLRU,
		StoreBehavior:        StoreWriteBack,
		StoreLatency:         0,
		LoadLatency:          1,
		LaneReplacementDelay: 10,
		AddRemainingDelay:    false,
	}
}

// DefaultSimulationConfig returns the stock CPU with no code and no memory.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		CpuConfig:       DefaultCpuConfig(),
		MemoryLocations: []MemoryLocation{},
	}
}

// DefaultMemoryLocation is the template for a newly added location.
func DefaultMemoryLocation() MemoryLocation {
	return MemoryLocation{Name: "Array", Alignment: 4, DataChunks: []DataChunk{}}
}

// Units returns the functional units of the given type.
func (c CpuConfig) Units(t UnitType) []FunctionUnit {
	var out []FunctionUnit
	for _, u := range c.FUnits {
		if u.FuType == t {
			out = append(out, u)
		}
	}
	return out
}

// CacheSets returns the number of sets implied by the line count and associativity.
func (c CpuConfig) CacheSets() int {
	if c.CacheAssoc <= 0 {
		return 0
	}
	return c.CacheLines / c.CacheAssoc
}

// WithCode returns a copy of the configuration carrying the given program.
func (s SimulationConfig) WithCode(code string) SimulationConfig {
	s.Code = code
	return s
}
