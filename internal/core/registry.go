package core

import "strings"

// Column identifies one of the known fields of the transit export.
// The order matches the column order of the source system.
type Column int

const (
	ColMessageCode Column = iota
	ColCheckpoint
	ColTransmissionDate
	ColOrderNumber
	ColDestinationStationCode
	ColDestinationStationName
	ColTotalWeight
	ColMonth
	ColDocument
	ColPayerCode
	ColPayerName
	ColSenderCode
	ColSenderName
	ColDepartureCode
	ColDepartureStationCode
	ColDepartureStationName
	ColDestinationCode
	ColCargoCode
	ColCargoName
	ColDepartureDate
	ColArrivalDate
	ColIssueDate
	ColCollectedAtDeparture
	ColCollectedAtArrival
	ColDestinationCountryCode
	ColDestinationCountryName
	ColDepartureCountryCode
	ColDepartureCountryName
	ColCommunicationType
	ColMixedTransportFlag
	ColWagonContainerNumber
	ColWagonAmount
	ColWagonWeight
	ColReaddressingFlag
	ColSpecialNote
	ColCalculationPlace
	ColCalculationForm
	ColDistance
	ColCoord96
	ColShipmentCategory
	ColTechPD
	ColShipper
	ColConsignee

	numColumns
)

// columnSpecs is indexed by Column.
var columnSpecs = [numColumns]FieldSpec{
	ColMessageCode:            {Header: "Код сооб", Name: "message_code"},
	ColCheckpoint:             {Header: "КПП", Name: "checkpoint"},
	ColTransmissionDate:       {Header: "Дата передачи", Name: "transmission_date", Type: FieldDate},
	ColOrderNumber:            {Header: "Номер наряда", Name: "order_number"},
	ColDestinationStationCode: {Header: "Стан. назн КЗХ", Name: "destination_station_code"},
	ColDestinationStationName: {Header: "Наимен.ст.наз КЗХ", Name: "destination_station_name"},
	ColTotalWeight:            {Header: "Общ.вес", Name: "total_weight", Type: FieldNumeric},
	ColMonth:                  {Header: "Мес", Name: "month"},
	ColDocument:               {Header: "Документ", Name: "document"},
	ColPayerCode:              {Header: "Код плат.", Name: "payer_code"},
	ColPayerName:              {Header: "Наименование плат.", Name: "payer_name"},
	ColSenderCode:             {Header: "Плат. отпр.", Name: "sender_code"},
	ColSenderName:             {Header: "Наименование плат.отп", Name: "sender_name"},
	ColDepartureCode:          {Header: "ГО", Name: "departure_code"},
	ColDepartureStationCode:   {Header: "Стан.отпр. КЗХ", Name: "departure_station_code"},
	ColDepartureStationName:   {Header: "Наимен.ст.отп КЗХ", Name: "departure_station_name"},
	ColDestinationCode:        {Header: "ГП", Name: "destination_code"},
	ColCargoCode:              {Header: "Груз", Name: "cargo_code"},
	ColCargoName:              {Header: "Наименование груза", Name: "cargo_name"},
	ColDepartureDate:          {Header: "Дата отпр.", Name: "departure_date", Type: FieldDate},
	ColArrivalDate:            {Header: "Дата приб.", Name: "arrival_date", Type: FieldDate},
	ColIssueDate:              {Header: "Дата выдачи", Name: "issue_date", Type: FieldDate},
	ColCollectedAtDeparture:   {Header: "Взыскано при отправлении", Name: "collected_at_departure", Type: FieldNumeric},
	ColCollectedAtArrival:     {Header: "Взыскано по прибытию", Name: "collected_at_arrival", Type: FieldNumeric},
	ColDestinationCountryCode: {Header: "Страна назн.", Name: "destination_country_code"},
	ColDestinationCountryName: {Header: "Наимен.стр.наз", Name: "destination_country_name"},
	ColDepartureCountryCode:   {Header: "Страна отпр.", Name: "departure_country_code"},
	ColDepartureCountryName:   {Header: "Наимен.стр.отп", Name: "departure_country_name"},
	ColCommunicationType:      {Header: "Вид сообщения (0-внутр, 1,4-экспорт, 2,5-импорт)", Name: "communication_type"},
	ColMixedTransportFlag:     {Header: "Признак 1 ч смеш.пер.(94 - 1 часть)", Name: "mixed_transport_flag"},
	ColWagonContainerNumber:   {Header: `Номер вагона\конт`, Name: "wagon_container_number"},
	ColWagonAmount:            {Header: "Сумма сост.на вагон", Name: "wagon_amount", Type: FieldNumeric},
	ColWagonWeight:            {Header: "Вес на вагон", Name: "wagon_weight", Type: FieldNumeric},
	ColReaddressingFlag:       {Header: "Признак переадр", Name: "readdressing_flag"},
	ColSpecialNote:            {Header: "Особая отметка", Name: "special_note"},
	ColCalculationPlace:       {Header: "Место расчета", Name: "calculation_place"},
	ColCalculationForm:        {Header: "Форма расчета", Name: "calculation_form"},
	ColDistance:               {Header: "Расстояние", Name: "distance", Type: FieldNumeric},
	ColCoord96:                {Header: "Коорд.96", Name: "coord_96"},
	ColShipmentCategory:       {Header: "Категория отправки", Name: "shipment_category"},
	ColTechPD:                 {Header: "ТехПД", Name: "tech_pd"},
	ColShipper:                {Header: "Грузоотправитель", Name: "shipper"},
	ColConsignee:              {Header: "Грузополучатель", Name: "consignee"},
}

// Derived field names assigned by the parser rather than read from a column.
const (
	KeyID                 = "id"
	KeyImportDate         = "import_date"
	KeySourceLine         = "source_line"
	KeyAnomalyProbability = "anomaly_probability"
	KeyAnomalyTypes       = "anomaly_types"
)

// RecommendedHeaders are the headers a well-formed export always carries.
var RecommendedHeaders = []string{"Код сооб", "Номер наряда", "Дата передачи"}

var (
	byHeader = make(map[string]Column, numColumns)
	byName   = make(map[string]Column, numColumns)
)

func init() {
	for i, spec := range columnSpecs {
		byHeader[spec.Header] = Column(i)
		byName[spec.Name] = Column(i)
	}
}

// Spec returns the field spec of a known column.
func (c Column) Spec() FieldSpec {
	return columnSpecs[c]
}

// Name returns the semantic field name of a known column.
func (c Column) Name() string {
	return columnSpecs[c].Name
}

// Columns returns all known column specs in source order.
func Columns() []FieldSpec {
	out := make([]FieldSpec, numColumns)
	copy(out, columnSpecs[:])
	return out
}

// LookupHeader resolves a CSV header to a known column. Both the source
// header text and the semantic field name are accepted, so exported files
// can be imported again.
func LookupHeader(header string) (Column, bool) {
	if c, ok := byHeader[header]; ok {
		return c, true
	}
	c, ok := byName[header]
	return c, ok
}

// LookupName resolves a semantic field name to a known column.
func LookupName(name string) (Column, bool) {
	c, ok := byName[name]
	return c, ok
}

// IsDerivedKey reports whether name is one of the parser-assigned fields.
func IsDerivedKey(name string) bool {
	switch name {
	case KeyID, KeyImportDate, KeySourceLine, KeyAnomalyProbability, KeyAnomalyTypes:
		return true
	}
	return false
}

// HeaderFieldType decides the coercion for a header. Known columns use their
// declared type; other headers follow the text markers of the source export.
func HeaderFieldType(header string) FieldType {
	if c, ok := LookupHeader(header); ok {
		return columnSpecs[c].Type
	}
	if strings.Contains(header, "Дата") {
		return FieldDate
	}
	lower := strings.ToLower(header)
	for _, marker := range []string{"вес", "сумма", "взыскано", "расстояние"} {
		if strings.Contains(lower, marker) {
			return FieldNumeric
		}
	}
	return FieldText
}

// FieldTypeOf returns the comparison type for a record key, used by sorting.
func FieldTypeOf(name string) FieldType {
	if c, ok := byName[name]; ok {
		return columnSpecs[c].Type
	}
	switch name {
	case KeyImportDate:
		return FieldDate
	case KeySourceLine:
		return FieldNumeric
	}
	return HeaderFieldType(name)
}
