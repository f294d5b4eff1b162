package layout

import "fmt"

// RootIndex names a process-wide singleton in the root table.
type RootIndex uint8

const (
	RootMetaMap RootIndex = iota
	RootOnePointerFillerMap
	RootOddballMap
	RootHeapNumberMap
	RootFixedArrayMap
	RootFixedDoubleArrayMap

	RootSeqTwoByteStringMap
	RootSeqOneByteStringMap
	RootConsTwoByteStringMap
	RootConsOneByteStringMap
	RootSlicedTwoByteStringMap
	RootSlicedOneByteStringMap
	RootExternalTwoByteStringMap
	RootExternalOneByteStringMap
	RootShortExternalTwoByteStringMap
	RootShortExternalOneByteStringMap

	RootJSArraySmiElementsMap
	RootJSArrayDoubleElementsMap
	RootJSArrayObjectElementsMap

	RootTheHole
	RootUndefined
	RootEmptyFixedArray
	RootEmptyString

	RootCount
)

var rootNames = [...]string{
	RootMetaMap:                       "meta_map",
	RootOnePointerFillerMap:           "one_pointer_filler_map",
	RootOddballMap:                    "oddball_map",
	RootHeapNumberMap:                 "heap_number_map",
	RootFixedArrayMap:                 "fixed_array_map",
	RootFixedDoubleArrayMap:           "fixed_double_array_map",
	RootSeqTwoByteStringMap:           "seq_two_byte_string_map",
	RootSeqOneByteStringMap:           "seq_one_byte_string_map",
	RootConsTwoByteStringMap:          "cons_two_byte_string_map",
	RootConsOneByteStringMap:          "cons_one_byte_string_map",
	RootSlicedTwoByteStringMap:        "sliced_two_byte_string_map",
	RootSlicedOneByteStringMap:        "sliced_one_byte_string_map",
	RootExternalTwoByteStringMap:      "external_two_byte_string_map",
	RootExternalOneByteStringMap:      "external_one_byte_string_map",
	RootShortExternalTwoByteStringMap: "short_external_two_byte_string_map",
	RootShortExternalOneByteStringMap: "short_external_one_byte_string_map",
	RootJSArraySmiElementsMap:         "js_array_smi_elements_map",
	RootJSArrayDoubleElementsMap:      "js_array_double_elements_map",
	RootJSArrayObjectElementsMap:      "js_array_object_elements_map",
	RootTheHole:                       "the_hole",
	RootUndefined:                     "undefined",
	RootEmptyFixedArray:               "empty_fixed_array",
	RootEmptyString:                   "empty_string",
}

func (r RootIndex) String() string {
	if int(r) < len(rootNames) && rootNames[r] != "" {
		return rootNames[r]
	}
	return fmt.Sprintf("root#%d", uint8(r))
}

// StringMapRoot returns the root holding the map for a string instance type.
func StringMapRoot(t InstanceType) (RootIndex, bool) {
	switch t {
	case SeqTwoByteStringType:
		return RootSeqTwoByteStringMap, true
	case SeqOneByteStringType:
		return RootSeqOneByteStringMap, true
	case ConsTwoByteStringType:
		return RootConsTwoByteStringMap, true
	case ConsOneByteStringType:
		return RootConsOneByteStringMap, true
	case SlicedTwoByteStringType:
		return RootSlicedTwoByteStringMap, true
	case SlicedOneByteStringType:
		return RootSlicedOneByteStringMap, true
	case ExternalTwoByteStringType:
		return RootExternalTwoByteStringMap, true
	case ExternalOneByteStringType:
		return RootExternalOneByteStringMap, true
	case ShortExternalTwoByteStringType:
		return RootShortExternalTwoByteStringMap, true
	case ShortExternalOneByteStringType:
		return RootShortExternalOneByteStringMap, true
	default:
		return 0, false
	}
}

// JSArrayMapRoot returns the array map root for an elements kind.
func JSArrayMapRoot(k ElementsKind) RootIndex {
	switch k {
	case FastDoubleElements:
		return RootJSArrayDoubleElementsMap
	case FastElements:
		return RootJSArrayObjectElementsMap
	default:
		return RootJSArraySmiElementsMap
	}
}
