package logic

// Default topics published by the rtl_433 bridge for the two Altronics X7064
// sensors: channel 1 sits in the greenhouse, channel 2 in the brewery.
const (
	DefaultTopicGreenhouseTemperature = "rtl_433/Mikaels-MacBook-Pro/devices/Altronics-X7064/1/780/temperature_C"
	DefaultTopicGreenhouseHumidity    = "rtl_433/Mikaels-MacBook-Pro/devices/Altronics-X7064/1/780/humidity"
	DefaultTopicBreweryTemperature    = "rtl_433/Mikaels-MacBook-Pro/devices/Altronics-X7064/2/241/temperature_C"
	DefaultTopicBreweryHumidity       = "rtl_433/Mikaels-MacBook-Pro/devices/Altronics-X7064/2/241/humidity"
)

// Tag is the routing target of a topic.
type Tag struct {
	Location Location
	Field    Field
}

// TopicTable maps exact topic strings to their routing tag.
type TopicTable map[string]Tag

// TopicSet names the four subscribed topics.
type TopicSet struct {
	GreenhouseTemperature string
	GreenhouseHumidity    string
	BreweryTemperature    string
	BreweryHumidity       string
}

// DefaultTopics returns the rtl_433 topics of the two Altronics X7064 sensors.
func DefaultTopics() TopicSet {
	return TopicSet{
		GreenhouseTemperature: DefaultTopicGreenhouseTemperature,
		GreenhouseHumidity:    DefaultTopicGreenhouseHumidity,
		BreweryTemperature:    DefaultTopicBreweryTemperature,
		BreweryHumidity:       DefaultTopicBreweryHumidity,
	}
}

// Table builds the routing table for the set.
func (s TopicSet) Table() TopicTable {
	return TopicTable{
		s.GreenhouseTemperature: {LocationGreenhouse, FieldTemperature},
		s.GreenhouseHumidity:    {LocationGreenhouse, FieldHumidity},
		s.BreweryTemperature:    {LocationBrewery, FieldTemperature},
		s.BreweryHumidity:       {LocationBrewery, FieldHumidity},
	}
}

// List returns the topics in subscription order.
func (s TopicSet) List() []string {
	return []string{
		s.GreenhouseTemperature,
		s.GreenhouseHumidity,
		s.BreweryTemperature,
		s.BreweryHumidity,
	}
}

// Resolve looks up a topic by exact match. Unknown topics return ok=false.
func (t TopicTable) Resolve(topic string) (Tag, bool) {
	tag, ok := t[topic]
	return tag, ok
}
