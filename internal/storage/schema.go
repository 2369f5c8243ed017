package storage

// schema mirrors the tables of an Anki collection that cardmerge touches.
// Every statement is guarded so opening a real collection leaves it as is.
const schema = `
-- The 'col' table is a singleton holding collection-wide state. mod is consulted by sync.
CREATE TABLE IF NOT EXISTS col (
    id integer PRIMARY KEY,
    crt integer NOT NULL,
    mod integer NOT NULL,
    scm integer NOT NULL,
    ver integer NOT NULL,
    dty integer NOT NULL,
    usn integer NOT NULL,
    ls integer NOT NULL,
    conf text NOT NULL,
    models text NOT NULL,
    decks text NOT NULL,
    dconf text NOT NULL,
    tags text NOT NULL
);

-- The 'notes' table stores the content; fields are joined with 0x1f.
CREATE TABLE IF NOT EXISTS notes (
    id integer PRIMARY KEY,
    guid text NOT NULL,
    mid integer NOT NULL,
    mod integer NOT NULL,
    usn integer NOT NULL,
    tags text NOT NULL,
    flds text NOT NULL,
    sfld integer NOT NULL,
    csum integer NOT NULL,
    flags integer NOT NULL,
    data text NOT NULL
);

-- The 'cards' table stores the scheduling state. id is the creation time in epoch milliseconds.
CREATE TABLE IF NOT EXISTS cards (
    id integer PRIMARY KEY,
    nid integer NOT NULL,
    did integer NOT NULL,
    ord integer NOT NULL,
    mod integer NOT NULL,
    usn integer NOT NULL,
    type integer NOT NULL,
    queue integer NOT NULL,
    due integer NOT NULL,
    ivl integer NOT NULL,
    factor integer NOT NULL,
    reps integer NOT NULL,
    lapses integer NOT NULL,
    left integer NOT NULL,
    odue integer NOT NULL,
    odid integer NOT NULL,
    flags integer NOT NULL,
    data text NOT NULL
);

-- The 'revlog' table is the append-only review history, keyed by card id without a foreign key.
CREATE TABLE IF NOT EXISTS revlog (
    id integer PRIMARY KEY,
    cid integer NOT NULL,
    usn integer NOT NULL,
    ease integer NOT NULL,
    ivl integer NOT NULL,
    lastIvl integer NOT NULL,
    factor integer NOT NULL,
    time integer NOT NULL,
    type integer NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_cards_nid ON cards (nid);
CREATE INDEX IF NOT EXISTS ix_revlog_cid ON revlog (cid);

-- A new collection gets the host's Default deck and a note type matching the Q:/A:/C: markdown blocks.
INSERT OR IGNORE INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
VALUES (1, strftime('%s', 'now'), 0, 0, 11, 0, 0, 0, '{}',
    '{"1":{"id":1,"name":"cardmerge Basic","sortf":0,"flds":[{"name":"Front","ord":0},{"name":"Back","ord":1},{"name":"Context","ord":2}]}}',
    '{"1":{"id":1,"name":"Default"}}',
    '{}', '{}');
`
