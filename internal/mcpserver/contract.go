package mcpserver

// TimelineContract describes the day timeline returned by the tools, so an
// assistant can pick indexes for move_spot, set_stay_time and set_leg.
const TimelineContract = `# itinera Day Timeline

A day plan is an ordered list of segments. Visits and travel legs alternate:

` + "```" + `
visit, travel, visit, travel, visit
` + "```" + `

## Segments

- **spot** (visit): ` + "`" + `spot_id` + "`" + `, ` + "`" + `name` + "`" + `, ` + "`" + `stay_min` + "`" + ` (null when unknown),
  computed ` + "`" + `arrival` + "`" + ` and ` + "`" + `departure` + "`" + ` as HH:MM. Hours past 23 mean the next day.
- **travel** (leg): ` + "`" + `transport_mode` + "`" + ` (car, train, walk, bus, plane, ship),
  ` + "`" + `duration_min` + "`" + ` (null when unknown), optional cost, note and url.

## Indexes

- ` + "`" + `set_stay_time` + "`" + ` and ` + "`" + `set_leg` + "`" + ` take the index of the segment in the list.
- ` + "`" + `move_spot` + "`" + ` takes the index of a visit (` + "`" + `from` + "`" + `) and a drop point
  (` + "`" + `to` + "`" + `, 0 to list length). The visit lands before the segment at ` + "`" + `to` + "`" + `.
- A visit labelled "from previous night" is the lodging carried over from the day
  before. It always stays first and cannot be moved.

## Flags

- ` + "`" + `backwards` + "`" + `: a negative duration or an arrival before the previous departure.
- ` + "`" + `past_midnight` + "`" + `: the visit runs into the next day without being an overnight stay.
`
